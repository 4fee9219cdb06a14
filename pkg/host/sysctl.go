package host

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultForwardProcPath = "/proc/sys/net/ipv4/ip_forward"
	defaultForwardConfPath = "/etc/sysctl.d/99-vpn-sentinel.conf"
)

// Sysctl reads and writes net.ipv4.ip_forward through procfs and persists it
// as a sysctl.d drop-in.
type Sysctl struct {
	ProcPath string
	ConfPath string
}

func (s Sysctl) procPath() string {
	if s.ProcPath == "" {
		return defaultForwardProcPath
	}
	return s.ProcPath
}

func (s Sysctl) confPath() string {
	if s.ConfPath == "" {
		return defaultForwardConfPath
	}
	return s.ConfPath
}

// Forwarding reports whether IPv4 forwarding is enabled.
func (s Sysctl) Forwarding(_ context.Context) (bool, error) {
	b, err := os.ReadFile(s.procPath())
	if err != nil {
		return false, fmt.Errorf("read ip_forward: %w", err)
	}
	return strings.TrimSpace(string(b)) == "1", nil
}

// SetForwarding writes the live kernel flag.
func (s Sysctl) SetForwarding(_ context.Context, on bool) error {
	if err := os.WriteFile(s.procPath(), []byte(flagValue(on)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write ip_forward: %w", err)
	}
	return nil
}

// PersistForwarding writes the drop-in so the flag survives reboot. An
// unchanged drop-in is left untouched.
func (s Sysctl) PersistForwarding(_ context.Context, on bool) error {
	p := s.confPath()
	want := []byte("net.ipv4.ip_forward = " + flagValue(on) + "\n")
	if cur, err := os.ReadFile(p); err == nil && bytes.Equal(cur, want) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, want, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

func flagValue(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
