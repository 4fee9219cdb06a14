// Package scheduler drives check cycles: one-shot, continuous, and the
// boot-time readiness wait that precedes the first continuous cycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"vpn-sentinel/pkg/engine"
	"vpn-sentinel/pkg/model"
	"vpn-sentinel/pkg/retry"
)

// DefaultInterval is the pause between continuous cycles.
const DefaultInterval = 300 * time.Second

// Hook observes every finished cycle.
type Hook func(ctx context.Context, s model.RunSummary)

// Scheduler runs cycles of check followed by reconcile.
type Scheduler struct {
	checker  *engine.Checker
	repairer *engine.Repairer
	sink     engine.Recorder
	logger   *log.Logger
	interval time.Duration

	mu    sync.RWMutex
	hooks []Hook
	last  *model.RunSummary
}

// Config configures a Scheduler.
type Config struct {
	// Interval between continuous cycles.
	// Default: 300s
	Interval time.Duration

	// Logger receives the routine execution log.
	// Default: stderr
	Logger *log.Logger
}

// New creates a scheduler.
func New(checker *engine.Checker, repairer *engine.Repairer, sink engine.Recorder, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Scheduler{
		checker:  checker,
		repairer: repairer,
		sink:     sink,
		logger:   cfg.Logger,
		interval: cfg.Interval,
	}
}

// OnCycle registers a hook called after every cycle.
func (s *Scheduler) OnCycle(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Last returns the summary of the most recent cycle.
func (s *Scheduler) Last() (model.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return model.RunSummary{}, false
	}
	return s.last.Clone(), true
}

// RunOnce performs one cycle: run every probe, reconcile failures, record
// the outcome. A cycle without any initial Fail emits one Info record.
func (s *Scheduler) RunOnce(ctx context.Context) model.RunSummary {
	checked := s.checker.RunAll(ctx)
	out := checked
	if checked.Failed > 0 {
		s.logger.Printf("cycle: %d failed, reconciling", checked.Failed)
		out = s.repairer.Reconcile(ctx, checked)
	} else {
		s.record(model.SeverityInfo, fmt.Sprintf("cycle ok: %d/%d passed, %d warned", checked.Passed, checked.Total, checked.Warned))
	}
	for _, r := range out.Results {
		if r.Status != model.StatusPass {
			s.logger.Printf("%s %s: %s", r.Probe, r.Status, r.Message)
		}
	}
	s.logger.Printf("cycle done status=%s passed=%d failed=%d warned=%d repairs=%d took=%s",
		out.Status, out.Passed, out.Failed, out.Warned, len(out.Repairs), out.Duration().Round(time.Millisecond))

	s.mu.Lock()
	snapshot := out.Clone()
	s.last = &snapshot
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()
	for _, h := range hooks {
		h(ctx, out)
	}
	return out
}

// Monitor runs cycles until ctx is cancelled. Cancellation is honored only
// between cycles: a started cycle always runs to completion.
func (s *Scheduler) Monitor(ctx context.Context) error {
	s.logger.Printf("monitor started interval=%s", s.interval)
	for {
		if ctx.Err() != nil {
			break
		}
		s.RunOnce(context.WithoutCancel(ctx))
		if err := retry.Sleep(ctx, s.interval); err != nil {
			break
		}
	}
	s.logger.Printf("monitor stopped")
	return nil
}

// WaitReady polls cfg.Probe until it succeeds or attempts run out. On
// exhaustion it records a Warning and returns false so the caller proceeds
// anyway. A nil probe is ready immediately.
func (s *Scheduler) WaitReady(ctx context.Context, cfg model.ReadinessWaitConfig) bool {
	if cfg.Probe == nil {
		return true
	}
	attempts, err := retry.Until(ctx, retry.Config{
		Interval:    cfg.Interval,
		MaxAttempts: cfg.MaxAttempts,
		OnAttempt: func(n int) {
			s.logger.Printf("readiness attempt %d/%d failed", n, cfg.MaxAttempts)
		},
	}, cfg.Probe)
	switch {
	case err == nil:
		s.logger.Printf("ready after %d attempt(s)", attempts)
		return true
	case errors.Is(err, retry.ErrExhausted):
		s.record(model.SeverityWarning, fmt.Sprintf("readiness not reached after %d attempts, proceeding anyway", attempts))
	default:
		s.logger.Printf("readiness wait interrupted: %v", err)
	}
	return false
}

func (s *Scheduler) record(sev model.Severity, msg string) {
	if s.sink == nil {
		s.logger.Printf("[%s] %s", sev, msg)
		return
	}
	if err := s.sink.Record(sev, msg); err != nil {
		s.logger.Printf("record alert failed: %v", err)
	}
}
