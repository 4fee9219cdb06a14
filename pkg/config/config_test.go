package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("SENTINEL_IFACE", "tun0")
	t.Setenv("SENTINEL_PORT", "1194")
	t.Setenv("SENTINEL_INTERVAL", "1m")
	t.Setenv("SENTINEL_STRICT_RULES", "true")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Iface != "tun0" || c.Port != 1194 || c.Interval != time.Minute || !c.StrictRules {
		t.Errorf("Load() = %+v", c)
	}
	if c.Unit != "wg-quick@wg0" {
		t.Errorf("Unit = %q, want default", c.Unit)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.env")
	body := "SENTINEL_UNIT=openvpn-server@server\nSENTINEL_CONN_SOURCE=openvpn\nSENTINEL_DISK_THRESHOLD=80\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	// already-set variables win over the file
	t.Setenv("SENTINEL_DISK_THRESHOLD", "85")
	t.Cleanup(func() {
		os.Unsetenv("SENTINEL_UNIT")
		os.Unsetenv("SENTINEL_CONN_SOURCE")
	})

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Unit != "openvpn-server@server" || c.ConnSource != "openvpn" {
		t.Errorf("Unit/ConnSource = %q/%q", c.Unit, c.ConnSource)
	}
	if c.DiskThreshold != 85 {
		t.Errorf("DiskThreshold = %d, want 85", c.DiskThreshold)
	}
}

func TestLoad_BadNumber(t *testing.T) {
	t.Setenv("SENTINEL_PORT", "abc")
	t.Setenv("SENTINEL_INTERVAL", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "none"))
	if err == nil {
		t.Fatal("Load() error = nil, want parse errors")
	}
	for _, want := range []string{"SENTINEL_PORT", "SENTINEL_INTERVAL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestFlagsOverride(t *testing.T) {
	c := Default()
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	c.RegisterFlags(fs)
	c.RegisterMonitorFlags(fs)
	if err := fs.Parse([]string{"-iface", "wg1", "-interval", "30s", "-disk-threshold", "70"}); err != nil {
		t.Fatal(err)
	}
	if c.Iface != "wg1" || c.Interval != 30*time.Second || c.DiskThreshold != 70 {
		t.Errorf("after flags = %+v", c)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty unit", func(c *Config) { c.Unit = " " }, "unit"},
		{"empty iface", func(c *Config) { c.Iface = "" }, "iface"},
		{"bad subnet", func(c *Config) { c.Subnet = "10.8.0.0" }, "subnet"},
		{"bad port", func(c *Config) { c.Port = 70000 }, "port"},
		{"bad proto", func(c *Config) { c.Proto = "icmp" }, "proto"},
		{"disk threshold", func(c *Config) { c.DiskThreshold = 0 }, "disk threshold"},
		{"memory threshold", func(c *Config) { c.MemoryThreshold = 101 }, "memory threshold"},
		{"interval", func(c *Config) { c.Interval = 0 }, "interval"},
		{"ready attempts", func(c *Config) { c.ReadyAttempts = 0 }, "ready attempts"},
		{"conn source", func(c *Config) { c.ConnSource = "ipsec" }, "conn source"},
		{"mysql without dsn", func(c *Config) { c.Journal = "mysql" }, "DSN"},
		{"tls half set", func(c *Config) { c.TLSCert = "cert.pem" }, "tls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestRuleSet(t *testing.T) {
	c := Default()
	rs := c.RuleSet("eth0")
	if rs.Egress != "eth0" || rs.Iface != "wg0" || rs.Port != 51820 {
		t.Errorf("RuleSet() = %+v", rs)
	}
	c.Egress = "ens3"
	if got := c.RuleSet("eth0").Egress; got != "ens3" {
		t.Errorf("explicit egress = %q, want ens3", got)
	}
	if err := c.RuleSet("eth0").Validate(); err != nil {
		t.Errorf("RuleSet().Validate() = %v", err)
	}
}
