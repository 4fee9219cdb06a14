package probe

import (
	"context"
	"time"

	"vpn-sentinel/pkg/host"
	"vpn-sentinel/pkg/model"
)

// Defaults for the standard probe set.
const (
	DefaultDiskThreshold   = 90
	DefaultMemoryThreshold = 90
	DefaultSettleWindow    = 30 * time.Second
)

// Config parameterizes the standard probe set.
type Config struct {
	Unit  string // tunnel service unit
	Iface string // tunnel interface
	Rules host.RuleSet

	// StrictRules turns a partially present rule set into a Fail.
	StrictRules bool

	// SettleWindow is how long after activation a missing interface is
	// still considered transitional.
	SettleWindow time.Duration

	DiskPath        string
	DiskThreshold   int
	MemoryThreshold int
}

// Deps are the host collaborators the probes read from.
type Deps struct {
	Service     host.ServiceControl
	Links       host.InterfaceQuery
	Firewall    host.Firewall
	Kernel      host.KernelFlags
	Resources   host.Resources
	Connections host.Connections
}

// Standard returns the seven gateway probes in declaration order.
func Standard(cfg Config, d Deps) []Probe {
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	if cfg.DiskThreshold <= 0 {
		cfg.DiskThreshold = DefaultDiskThreshold
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = DefaultMemoryThreshold
	}
	if cfg.SettleWindow <= 0 {
		cfg.SettleWindow = DefaultSettleWindow
	}
	return []Probe{
		NewServiceRunning(cfg.Unit, d.Service),
		NewInterfaceUp(cfg.Iface, cfg.Unit, cfg.SettleWindow, d.Links, d.Service),
		NewFirewallRules(cfg.Rules, cfg.StrictRules, d.Firewall),
		NewIPForwarding(d.Kernel),
		NewDiskUsage(cfg.DiskPath, cfg.DiskThreshold, d.Resources),
		NewMemoryUsage(cfg.MemoryThreshold, d.Resources),
		NewActiveConnections(d.Connections),
	}
}

// NewServiceRunning fails when the unit is not active.
func NewServiceRunning(unit string, svc host.ServiceControl) Probe {
	return New(ServiceRunning, func(ctx context.Context) model.CheckResult {
		active, err := svc.IsActive(ctx, unit)
		if err != nil {
			return Warn("cannot query %s: %v", unit, err)
		}
		if !active {
			return Fail("service %s is not active", unit)
		}
		return Pass("service %s is active", unit)
	})
}

// NewInterfaceUp fails when the interface is missing although the service has
// been active for longer than the settle window. A missing interface while
// the service is down or just started is transitional and only warns, so it
// never triggers a repair of its own.
func NewInterfaceUp(iface, unit string, settle time.Duration, links host.InterfaceQuery, svc host.ServiceControl) Probe {
	return New(InterfaceUp, func(ctx context.Context) model.CheckResult {
		up, err := links.ExistsAndUp(iface)
		if err != nil {
			return Warn("cannot query interface %s: %v", iface, err)
		}
		if up {
			return Pass("interface %s is up", iface)
		}
		active, err := svc.IsActive(ctx, unit)
		if err != nil {
			return Warn("interface %s absent, service state unknown: %v", iface, err)
		}
		if !active {
			return Warn("interface %s absent (transitional: service %s not active)", iface, unit)
		}
		if since, err := svc.ActiveSince(ctx, unit); err == nil && !since.IsZero() {
			if age := time.Since(since); age < settle {
				return Warn("interface %s absent (transitional: service started %s ago)", iface, age.Round(time.Second))
			}
		}
		return Fail("interface %s absent while service %s is active", iface, unit)
	})
}

// NewFirewallRules fails when none of the expected rules are present. The
// message reports matched/expected.
func NewFirewallRules(rs host.RuleSet, strict bool, fw host.Firewall) Probe {
	return New(FirewallRules, func(ctx context.Context) model.CheckResult {
		expected := len(rs.Rules())
		n, err := fw.CountMatching(ctx, rs)
		if err != nil {
			return Warn("cannot read rule table: %v", err)
		}
		switch {
		case n == 0:
			return Fail("%d/%d expected rules present", n, expected)
		case n < expected && strict:
			return Fail("incomplete: %d/%d expected rules present", n, expected)
		case n < expected:
			return Warn("incomplete: %d/%d expected rules present", n, expected)
		}
		return Pass("%d/%d expected rules present", n, expected)
	})
}

// NewIPForwarding fails when IPv4 forwarding is off.
func NewIPForwarding(k host.KernelFlags) Probe {
	return New(IPForwarding, func(ctx context.Context) model.CheckResult {
		on, err := k.Forwarding(ctx)
		if err != nil {
			return Warn("cannot read forwarding flag: %v", err)
		}
		if !on {
			return Fail("net.ipv4.ip_forward is disabled")
		}
		return Pass("net.ipv4.ip_forward is enabled")
	})
}

// NewDiskUsage warns when usage of path exceeds threshold percent.
func NewDiskUsage(path string, threshold int, res host.Resources) Probe {
	return New(DiskUsage, func(context.Context) model.CheckResult {
		pct, err := res.DiskUsagePercent(path)
		if err != nil {
			return Warn("disk usage unavailable: %v", err)
		}
		if pct > threshold {
			return Warn("disk usage %d%% on %s exceeds %d%%", pct, path, threshold)
		}
		return Pass("disk usage %d%% on %s", pct, path)
	})
}

// NewMemoryUsage warns when memory usage exceeds threshold percent.
func NewMemoryUsage(threshold int, res host.Resources) Probe {
	return New(MemoryUsage, func(context.Context) model.CheckResult {
		pct, err := res.MemoryUsagePercent()
		if err != nil {
			return Warn("memory usage unavailable: %v", err)
		}
		if pct > threshold {
			return Warn("memory usage %d%% exceeds %d%%", pct, threshold)
		}
		return Pass("memory usage %d%%", pct)
	})
}

// NewActiveConnections always passes with the client count, or warns when
// the status source cannot be read.
func NewActiveConnections(src host.Connections) Probe {
	return New(ActiveConnections, func(ctx context.Context) model.CheckResult {
		n, err := src.ActiveConnections(ctx)
		if err != nil {
			return Warn("connection status unavailable: %v", err)
		}
		return Pass("%d active connections", n)
	})
}
