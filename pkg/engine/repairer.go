package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vpn-sentinel/pkg/model"
	"vpn-sentinel/pkg/probe"
)

// Priority is the fixed repair order. A dead service makes the other
// repairs moot, so it always goes first. Failing probes not listed here are
// repaired afterwards in declaration order.
var Priority = []string{probe.ServiceRunning, probe.FirewallRules, probe.IPForwarding}

// Dependents lists probes re-run after a probe's repair converges because
// their state follows from it.
var Dependents = map[string][]string{
	probe.ServiceRunning: {probe.InterfaceUp},
}

// Recorder receives alert records.
type Recorder interface {
	Record(severity model.Severity, message string) error
}

// Repairer applies bound repair actions to failing probes.
type Repairer struct {
	checker *Checker
	actions map[string]Action
	sink    Recorder
	tracer  trace.Tracer
}

// NewRepairer binds actions to the checker's probes. At most one action may
// be bound per probe and every action must target a registered probe.
func NewRepairer(checker *Checker, sink Recorder, actions ...Action) (*Repairer, error) {
	r := &Repairer{
		checker: checker,
		actions: make(map[string]Action, len(actions)),
		sink:    sink,
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, a := range actions {
		name := a.Probe()
		if _, ok := checker.index[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProbe, name)
		}
		if _, dup := r.actions[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, name)
		}
		r.actions[name] = a
	}
	return r, nil
}

// Bound reports whether a repair action is bound to the probe.
func (r *Repairer) Bound(name string) bool {
	_, ok := r.actions[name]
	return ok
}

// Reconcile repairs every failing probe that has a bound action, one attempt
// each, re-verifies it and folds the fresh result into a copy of s. Failures
// without a binding are reported once. Repairs ignore cancellation of ctx so
// a started repair always completes its apply and re-check.
func (r *Repairer) Reconcile(ctx context.Context, s model.RunSummary) model.RunSummary {
	ctx = context.WithoutCancel(ctx)
	ctx, span := r.tracer.Start(ctx, "engine.reconcile")
	defer span.End()

	out := s.Clone()
	for _, name := range r.order(out) {
		res, ok := out.Result(name)
		if !ok || res.Status != model.StatusFail {
			continue
		}
		r.repair(ctx, &out, r.actions[name], res)
	}

	for _, res := range out.Results {
		if res.Status == model.StatusFail && !r.Bound(res.Probe) {
			r.record(model.SeverityAlert, fmt.Sprintf("%s failed with no automatic repair: %s", res.Probe, res.Message))
		}
	}
	out.FinishedAt = time.Now()
	out.Recount()
	span.SetAttributes(
		attribute.Int("repairs", len(out.Repairs)),
		attribute.String("cycle.status", string(out.Status)),
	)
	return out
}

// order lists bound probes in priority order followed by the remaining bound
// probes in declaration order.
func (r *Repairer) order(s model.RunSummary) []string {
	seen := make(map[string]bool, len(r.actions))
	names := make([]string, 0, len(r.actions))
	for _, name := range Priority {
		if r.Bound(name) {
			names = append(names, name)
			seen[name] = true
		}
	}
	for _, res := range s.Results {
		if r.Bound(res.Probe) && !seen[res.Probe] {
			names = append(names, res.Probe)
			seen[res.Probe] = true
		}
	}
	return names
}

// repair runs apply and re-verify for one failing probe. Exactly one Warning
// is recorded for the attempt and at most one Alert if it does not converge.
func (r *Repairer) repair(ctx context.Context, s *model.RunSummary, a Action, failed model.CheckResult) {
	name := a.Probe()
	ctx, span := r.tracer.Start(ctx, "repair."+name)
	defer span.End()

	r.record(model.SeverityWarning, fmt.Sprintf("%s failed (%s), attempting repair", name, failed.Message))

	applyErr := a.Apply(ctx)
	if applyErr != nil && errors.Is(applyErr, ErrPersistence) {
		perr := &RepairError{Probe: name, Kind: ErrPersistence, Err: applyErr}
		log.Printf("repair %s: %v", name, applyErr)
		r.record(model.SeverityWarning, perr.Error())
		s.Repairs = append(s.Repairs, model.RepairOutcome{Probe: name, Converged: true, Kind: kindName(ErrPersistence), Error: applyErr.Error()})
		applyErr = nil
	}

	res, err := r.checker.Check(ctx, name)
	if err == nil {
		s.Replace(res)
	}

	var rerr *RepairError
	switch {
	case applyErr != nil:
		rerr = &RepairError{Probe: name, Kind: ErrRepairApply, Err: applyErr}
	case res.Status == model.StatusFail:
		rerr = &RepairError{Probe: name, Kind: ErrRepairVerify, Err: errors.New(res.Message)}
	}
	if rerr != nil {
		log.Printf("repair %s: %v", name, rerr)
		span.SetStatus(codes.Error, rerr.Error())
		r.record(model.SeverityAlert, fmt.Sprintf("repair of %s did not converge: %v", name, rerr.Err))
		s.Repairs = append(s.Repairs, model.RepairOutcome{Probe: name, Kind: kindName(rerr.Kind), Error: rerr.Error()})
		s.Recount()
		return
	}

	log.Printf("repair %s converged: %s", name, res.Message)
	s.Repairs = append(s.Repairs, model.RepairOutcome{Probe: name, Converged: true})
	s.Recount()
	for _, dep := range Dependents[name] {
		if res, err := r.checker.Check(ctx, dep); err == nil {
			s.Replace(res)
		}
	}
}

func (r *Repairer) record(sev model.Severity, msg string) {
	if r.sink == nil {
		log.Printf("[%s] %s", sev, msg)
		return
	}
	if err := r.sink.Record(sev, msg); err != nil {
		log.Printf("record alert failed: %v", err)
	}
}
