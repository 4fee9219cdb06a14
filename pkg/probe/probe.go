// Package probe defines the health probes of the gateway.
//
// A probe is a named, stateless test of one precondition. It may read live
// state through the host interfaces but never mutates anything. Probes
// report collaborator errors as Warn results rather than returning errors, so
// a broken status source never aborts a cycle.
package probe

import (
	"context"
	"fmt"
	"time"

	"vpn-sentinel/pkg/model"
)

// Probe names in declaration order.
const (
	ServiceRunning    = "service_running"
	InterfaceUp       = "interface_up"
	FirewallRules     = "firewall_rules_present"
	IPForwarding      = "ip_forwarding_enabled"
	DiskUsage         = "disk_usage"
	MemoryUsage       = "memory_usage"
	ActiveConnections = "active_connection_count"
)

// Probe is a single precondition check.
type Probe interface {
	// Name returns the unique probe name.
	Name() string

	// Check observes the live system and classifies it.
	Check(ctx context.Context) model.CheckResult
}

// Func adapts an ordinary function to a Probe.
type Func struct {
	name string
	fn   func(context.Context) model.CheckResult
}

// New creates a Probe from a function.
func New(name string, fn func(context.Context) model.CheckResult) *Func {
	return &Func{name: name, fn: fn}
}

// Name returns the probe name.
func (f *Func) Name() string { return f.name }

// Check runs the probe function and stamps the name on the result.
func (f *Func) Check(ctx context.Context) model.CheckResult {
	r := f.fn(ctx)
	r.Probe = f.name
	if r.ObservedAt.IsZero() {
		r.ObservedAt = time.Now()
	}
	return r
}

// Pass creates a passing result.
func Pass(format string, args ...any) model.CheckResult {
	return result(model.StatusPass, format, args...)
}

// Fail creates a failing result.
func Fail(format string, args ...any) model.CheckResult {
	return result(model.StatusFail, format, args...)
}

// Warn creates a soft-failure result.
func Warn(format string, args ...any) model.CheckResult {
	return result(model.StatusWarn, format, args...)
}

func result(st model.Status, format string, args ...any) model.CheckResult {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return model.CheckResult{Status: st, Message: msg, ObservedAt: time.Now()}
}
