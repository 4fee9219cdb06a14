// Package engine runs the probe set and reconciles failures.
//
// Checker executes every probe and aggregates a RunSummary. Repairer takes
// a summary, applies the bound repair action for each failing probe in a
// fixed priority order, re-verifies, and folds the fresh result back in.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"vpn-sentinel/pkg/model"
	"vpn-sentinel/pkg/probe"
)

// DefaultProbeTimeout bounds a single probe run.
const DefaultProbeTimeout = 5 * time.Second

const instrumentationName = "vpn-sentinel/engine"

// CheckerConfig configures a Checker.
type CheckerConfig struct {
	// Timeout bounds each probe.
	// Default: 5s
	Timeout time.Duration

	// Parallel runs probes concurrently. Results still keep declaration order.
	// Default: false
	Parallel bool
}

// Checker runs the registered probes.
type Checker struct {
	config CheckerConfig
	probes []probe.Probe
	index  map[string]probe.Probe
	tracer trace.Tracer
}

// NewChecker registers probes in declaration order. Names must be unique.
func NewChecker(probes []probe.Probe, config ...CheckerConfig) (*Checker, error) {
	cfg := CheckerConfig{Timeout: DefaultProbeTimeout}
	if len(config) > 0 {
		cfg = config[0]
		if cfg.Timeout <= 0 {
			cfg.Timeout = DefaultProbeTimeout
		}
	}
	c := &Checker{
		config: cfg,
		probes: make([]probe.Probe, 0, len(probes)),
		index:  make(map[string]probe.Probe, len(probes)),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, p := range probes {
		if _, dup := c.index[p.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProbe, p.Name())
		}
		c.index[p.Name()] = p
		c.probes = append(c.probes, p)
	}
	return c, nil
}

// Names returns the probe names in declaration order.
func (c *Checker) Names() []string {
	names := make([]string, len(c.probes))
	for i, p := range c.probes {
		names[i] = p.Name()
	}
	return names
}

// RunAll executes every probe and aggregates the results in declaration order.
func (c *Checker) RunAll(ctx context.Context) model.RunSummary {
	ctx, span := c.tracer.Start(ctx, "engine.check")
	defer span.End()

	started := time.Now()
	results := make([]model.CheckResult, len(c.probes))
	if c.config.Parallel {
		var g errgroup.Group
		for i, p := range c.probes {
			g.Go(func() error {
				results[i] = c.run(ctx, p)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, p := range c.probes {
			results[i] = c.run(ctx, p)
		}
	}
	s := model.NewRunSummary(results, started, time.Now())
	span.SetAttributes(
		attribute.Int("probes.total", s.Total),
		attribute.Int("probes.failed", s.Failed),
		attribute.Int("probes.warned", s.Warned),
	)
	return s
}

// Check re-runs a single probe by name.
func (c *Checker) Check(ctx context.Context, name string) (model.CheckResult, error) {
	p, ok := c.index[name]
	if !ok {
		return model.CheckResult{}, fmt.Errorf("%w: %s", ErrUnknownProbe, name)
	}
	return c.run(ctx, p), nil
}

// run executes one probe bounded by the timeout. A timeout or panic becomes
// a Warn result so the cycle always continues.
func (c *Checker) run(ctx context.Context, p probe.Probe) model.CheckResult {
	ctx, span := c.tracer.Start(ctx, "probe."+p.Name())
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	resultCh := make(chan model.CheckResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("probe %s panicked: %v", p.Name(), rec)
				resultCh <- model.CheckResult{
					Probe:      p.Name(),
					Status:     model.StatusWarn,
					Message:    fmt.Sprintf("%v: %v", ErrProbeInternal, rec),
					ObservedAt: time.Now(),
				}
			}
		}()
		resultCh <- p.Check(ctx)
	}()

	var r model.CheckResult
	select {
	case r = <-resultCh:
	case <-ctx.Done():
		r = model.CheckResult{
			Status:     model.StatusWarn,
			Message:    fmt.Sprintf("%v after %s", ErrProbeTimeout, time.Since(start).Round(time.Millisecond)),
			ObservedAt: time.Now(),
		}
	}
	r.Probe = p.Name()
	if r.ObservedAt.IsZero() {
		r.ObservedAt = start
	}
	span.SetAttributes(attribute.String("probe.status", string(r.Status)))
	return r
}
