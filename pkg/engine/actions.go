package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"vpn-sentinel/pkg/host"
	"vpn-sentinel/pkg/probe"
	"vpn-sentinel/pkg/retry"
)

// DefaultRestartGrace is the wait after a restart before the service is re-checked.
const DefaultRestartGrace = 5 * time.Second

// Action is an idempotent corrective procedure bound to one probe.
type Action interface {
	// Probe returns the name of the probe this action repairs.
	Probe() string

	// Apply performs the repair. A returned error wrapping ErrPersistence
	// means the repair itself took effect but a best-effort follow-up failed.
	Apply(ctx context.Context) error
}

// RestartService restarts the tunnel unit when it is not active.
type RestartService struct {
	Unit    string
	Service host.ServiceControl
	// Grace is the wait after a restart.
	// Default: 5s
	Grace time.Duration
}

func (a *RestartService) Probe() string { return probe.ServiceRunning }

func (a *RestartService) Apply(ctx context.Context) error {
	active, err := a.Service.IsActive(ctx, a.Unit)
	if err == nil && active {
		return nil
	}
	if err != nil {
		log.Printf("query %s before restart failed: %v", a.Unit, err)
	}
	log.Printf("restarting %s", a.Unit)
	if err := a.Service.Restart(ctx, a.Unit); err != nil {
		return err
	}
	grace := a.Grace
	if grace <= 0 {
		grace = DefaultRestartGrace
	}
	return retry.Sleep(ctx, grace)
}

// InstallRules installs the full rule set and persists the table.
type InstallRules struct {
	Rules    host.RuleSet
	Firewall host.Firewall
}

func (a *InstallRules) Probe() string { return probe.FirewallRules }

func (a *InstallRules) Apply(ctx context.Context) error {
	if err := a.Firewall.Install(ctx, a.Rules); err != nil {
		return err
	}
	return persisted(a.Firewall.Persist(ctx), "rule table")
}

// EnableForwarding turns on IPv4 forwarding and persists the flag.
type EnableForwarding struct {
	Kernel host.KernelFlags
}

func (a *EnableForwarding) Probe() string { return probe.IPForwarding }

func (a *EnableForwarding) Apply(ctx context.Context) error {
	on, err := a.Kernel.Forwarding(ctx)
	if err != nil || !on {
		if err := a.Kernel.SetForwarding(ctx, true); err != nil {
			return err
		}
	}
	return persisted(a.Kernel.PersistForwarding(ctx, true), "forwarding flag")
}

// persisted classifies the result of a best-effort persistence step. A host
// without any persistence mechanism is not an error.
func persisted(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, host.ErrNoPersistence):
		log.Printf("no persistence mechanism for %s, skipping", what)
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, what, err)
}

// StandardActions returns the repair bindings for the standard probe set.
// interface_up has no binding; it follows service_running.
func StandardActions(unit string, rules host.RuleSet, grace time.Duration, svc host.ServiceControl, fw host.Firewall, k host.KernelFlags) []Action {
	return []Action{
		&RestartService{Unit: unit, Service: svc, Grace: grace},
		&InstallRules{Rules: rules, Firewall: fw},
		&EnableForwarding{Kernel: k},
	}
}
