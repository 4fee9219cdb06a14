// Package host wraps the live system state the reconciliation loop observes
// and repairs: the tunnel service unit, the tunnel interface, the firewall
// rule table, the kernel forwarding flag, resource usage and the tunnel's
// connected clients.
//
// Each concern is a small interface so probes and repairs can be exercised
// against fakes (see hosttest). The concrete types shell out to systemctl and
// iptables, read procfs and talk to WireGuard over netlink.
package host

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoPersistence means no rule or sysctl persistence mechanism exists on this host.
	ErrNoPersistence = errors.New("host: no persistence mechanism available")

	// ErrUnavailable means a status source could not be read.
	ErrUnavailable = errors.New("host: status source unavailable")
)

// ServiceControl queries and restarts the tunnel service.
type ServiceControl interface {
	IsActive(ctx context.Context, unit string) (bool, error)
	// ActiveSince reports when the unit last entered the active state.
	// A zero time means unknown.
	ActiveSince(ctx context.Context, unit string) (time.Time, error)
	Restart(ctx context.Context, unit string) error
}

// InterfaceQuery reports tunnel interface presence.
type InterfaceQuery interface {
	ExistsAndUp(name string) (bool, error)
}

// Firewall counts, installs and persists the expected rule set.
type Firewall interface {
	CountMatching(ctx context.Context, rs RuleSet) (int, error)
	Install(ctx context.Context, rs RuleSet) error
	// Persist saves the active rule table so it survives reboot. Best-effort.
	Persist(ctx context.Context) error
}

// KernelFlags reads and writes the IPv4 forwarding flag.
type KernelFlags interface {
	Forwarding(ctx context.Context) (bool, error)
	SetForwarding(ctx context.Context, on bool) error
	PersistForwarding(ctx context.Context, on bool) error
}

// Resources reports utilization percentages (0-100).
type Resources interface {
	DiskUsagePercent(path string) (int, error)
	MemoryUsagePercent() (int, error)
}

// Connections reports the number of connected tunnel clients.
// An error means the status source is unavailable.
type Connections interface {
	ActiveConnections(ctx context.Context) (int, error)
}
