package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"vpn-sentinel/pkg/host"
	"vpn-sentinel/pkg/host/hosttest"
	"vpn-sentinel/pkg/model"
)

func testConfig() Config {
	return Config{
		Unit:  "wg-quick@wg0",
		Iface: "wg0",
		Rules: host.RuleSet{Iface: "wg0", Egress: "eth0", CIDR: "10.8.0.0/24", Port: 51820},
	}
}

func deps(h *hosttest.Healthy) Deps {
	return Deps{
		Service:     h.Service,
		Links:       h.Links,
		Firewall:    h.Firewall,
		Kernel:      h.Kernel,
		Resources:   h.Resources,
		Connections: h.Connections,
	}
}

func TestStandard_OrderAndNames(t *testing.T) {
	probes := Standard(testConfig(), deps(hosttest.NewHealthy()))
	want := []string{ServiceRunning, InterfaceUp, FirewallRules, IPForwarding, DiskUsage, MemoryUsage, ActiveConnections}
	if len(probes) != len(want) {
		t.Fatalf("len(Standard()) = %d, want %d", len(probes), len(want))
	}
	for i, p := range probes {
		if p.Name() != want[i] {
			t.Errorf("probe[%d] = %s, want %s", i, p.Name(), want[i])
		}
	}
}

func TestStandard_AllPassOnHealthyHost(t *testing.T) {
	for _, p := range Standard(testConfig(), deps(hosttest.NewHealthy())) {
		r := p.Check(context.Background())
		if r.Status != model.StatusPass {
			t.Errorf("%s = %s (%s), want pass", p.Name(), r.Status, r.Message)
		}
		if r.Probe != p.Name() {
			t.Errorf("result probe = %q, want %q", r.Probe, p.Name())
		}
		if r.ObservedAt.IsZero() {
			t.Errorf("%s ObservedAt is zero", p.Name())
		}
	}
}

func TestServiceRunning(t *testing.T) {
	tests := []struct {
		name string
		svc  *hosttest.Service
		want model.Status
	}{
		{"active", &hosttest.Service{Active: true}, model.StatusPass},
		{"inactive", &hosttest.Service{}, model.StatusFail},
		{"query error", &hosttest.Service{StatusErr: errors.New("dbus timeout")}, model.StatusWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewServiceRunning("wg-quick@wg0", tt.svc).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %s (%s), want %s", r.Status, r.Message, tt.want)
			}
		})
	}
}

func TestInterfaceUp(t *testing.T) {
	settle := 30 * time.Second
	tests := []struct {
		name       string
		links      *hosttest.Links
		svc        *hosttest.Service
		want       model.Status
		transition bool
	}{
		{"up", &hosttest.Links{Up: true}, &hosttest.Service{Active: true}, model.StatusPass, false},
		{"absent, service down", &hosttest.Links{}, &hosttest.Service{}, model.StatusWarn, true},
		{"absent, service fresh", &hosttest.Links{}, &hosttest.Service{Active: true, Since: time.Now()}, model.StatusWarn, true},
		{"absent, service long active", &hosttest.Links{}, &hosttest.Service{Active: true, Since: time.Now().Add(-time.Hour)}, model.StatusFail, false},
		{"absent, activation unknown", &hosttest.Links{}, &hosttest.Service{Active: true}, model.StatusFail, false},
		{"query error", &hosttest.Links{Err: errors.New("netlink")}, &hosttest.Service{Active: true}, model.StatusWarn, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewInterfaceUp("wg0", "wg-quick@wg0", settle, tt.links, tt.svc).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %s (%s), want %s", r.Status, r.Message, tt.want)
			}
			if got := strings.Contains(r.Message, "transitional"); got != tt.transition {
				t.Errorf("message %q transitional = %v, want %v", r.Message, got, tt.transition)
			}
		})
	}
}

func TestFirewallRules(t *testing.T) {
	rs := testConfig().Rules
	tests := []struct {
		name    string
		fw      *hosttest.Firewall
		strict  bool
		want    model.Status
		message string
	}{
		{"all present", &hosttest.Firewall{Present: 5}, false, model.StatusPass, "5/5"},
		{"none present", &hosttest.Firewall{Present: 0}, false, model.StatusFail, "0/5"},
		{"partial", &hosttest.Firewall{Present: 3}, false, model.StatusWarn, "3/5"},
		{"partial strict", &hosttest.Firewall{Present: 3}, true, model.StatusFail, "3/5"},
		{"table error", &hosttest.Firewall{CountErr: errors.New("iptables missing")}, false, model.StatusWarn, "cannot read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewFirewallRules(rs, tt.strict, tt.fw).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %s, want %s", r.Status, tt.want)
			}
			if !strings.Contains(r.Message, tt.message) {
				t.Errorf("Message = %q, want it to contain %q", r.Message, tt.message)
			}
		})
	}
}

func TestIPForwarding(t *testing.T) {
	if r := NewIPForwarding(&hosttest.Kernel{On: false}).Check(context.Background()); r.Status != model.StatusFail {
		t.Errorf("disabled: Status = %s, want fail", r.Status)
	}
	if r := NewIPForwarding(&hosttest.Kernel{On: true}).Check(context.Background()); r.Status != model.StatusPass {
		t.Errorf("enabled: Status = %s, want pass", r.Status)
	}
	if r := NewIPForwarding(&hosttest.Kernel{ReadErr: errors.New("eperm")}).Check(context.Background()); r.Status != model.StatusWarn {
		t.Errorf("error: Status = %s, want warn", r.Status)
	}
}

func TestResourceProbes(t *testing.T) {
	tests := []struct {
		name string
		p    Probe
		want model.Status
	}{
		{"disk below", NewDiskUsage("/", 90, &hosttest.Resources{Disk: 90}), model.StatusPass},
		{"disk above", NewDiskUsage("/", 90, &hosttest.Resources{Disk: 95}), model.StatusWarn},
		{"disk error", NewDiskUsage("/", 90, &hosttest.Resources{DiskErr: errors.New("statfs")}), model.StatusWarn},
		{"memory below", NewMemoryUsage(90, &hosttest.Resources{Memory: 10}), model.StatusPass},
		{"memory above", NewMemoryUsage(90, &hosttest.Resources{Memory: 91}), model.StatusWarn},
		{"memory error", NewMemoryUsage(90, &hosttest.Resources{MemErr: errors.New("procfs")}), model.StatusWarn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.p.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %s (%s), want %s", r.Status, r.Message, tt.want)
			}
		})
	}
}

func TestActiveConnections(t *testing.T) {
	r := NewActiveConnections(&hosttest.Connections{Count: 7}).Check(context.Background())
	if r.Status != model.StatusPass || !strings.Contains(r.Message, "7") {
		t.Errorf("got %s %q, want pass with count", r.Status, r.Message)
	}
	r = NewActiveConnections(&hosttest.Connections{Err: host.ErrUnavailable}).Check(context.Background())
	if r.Status != model.StatusWarn {
		t.Errorf("unavailable: Status = %s, want warn", r.Status)
	}
}

func TestFunc_StampsNameAndTime(t *testing.T) {
	p := New("custom", func(context.Context) model.CheckResult {
		return model.CheckResult{Status: model.StatusPass, Probe: "wrong"}
	})
	r := p.Check(context.Background())
	if r.Probe != "custom" {
		t.Errorf("Probe = %q, want custom", r.Probe)
	}
	if r.ObservedAt.IsZero() {
		t.Error("ObservedAt should be stamped")
	}
}
