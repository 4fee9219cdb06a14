// Package config loads sentinel settings.
//
// Precedence, lowest first: built-in defaults, env files (.env then
// /etc/vpn-sentinel/sentinel.env), SENTINEL_* environment variables,
// command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vpn-sentinel/pkg/host"
)

// SystemEnvFile is the env file read by the installed service.
const SystemEnvFile = "/etc/vpn-sentinel/sentinel.env"

// Config holds every tunable of the sentinel.
type Config struct {
	// tunnel
	Unit        string
	Iface       string
	Egress      string // empty: detect from the default route
	Subnet      string
	Port        int
	Proto       string
	StrictRules bool

	// connection status source: wireguard|openvpn
	ConnSource    string
	OpenVPNStatus string

	// thresholds
	DiskPath        string
	DiskThreshold   int
	MemoryThreshold int

	// timing
	Interval     time.Duration
	ProbeTimeout time.Duration
	RestartGrace time.Duration
	SettleWindow time.Duration
	Parallel     bool

	// boot readiness
	ReadyTarget   string
	ReadyInterval time.Duration
	ReadyAttempts int

	// logs
	AlertLog   string
	RoutineLog string

	// journal: sqlite|mysql|none
	Journal     string
	JournalPath string
	MySQLDSN    string

	// status API
	Listen            string
	TLSCert           string
	TLSKey            string
	TLSClientCA       string
	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string

	// telemetry exporters
	Metrics string
	Traces  string

	// consul publishing
	ConsulAddr    string
	ConsulKey     string
	ConsulCheckID string
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Unit:            "wg-quick@wg0",
		Iface:           "wg0",
		Subnet:          "10.8.0.0/24",
		Port:            51820,
		Proto:           "udp",
		ConnSource:      "wireguard",
		OpenVPNStatus:   "/var/log/openvpn/status.log",
		DiskPath:        "/",
		DiskThreshold:   90,
		MemoryThreshold: 90,
		Interval:        300 * time.Second,
		ProbeTimeout:    5 * time.Second,
		RestartGrace:    5 * time.Second,
		SettleWindow:    30 * time.Second,
		ReadyTarget:     "1.1.1.1:53",
		ReadyInterval:   5 * time.Second,
		ReadyAttempts:   24,
		AlertLog:        "/var/log/vpn-sentinel/alerts.log",
		RoutineLog:      "/var/log/vpn-sentinel/sentinel.log",
		Journal:         "sqlite",
		JournalPath:     "/var/lib/vpn-sentinel/journal.db",
		AdminUser:       "admin",
		Metrics:         "none",
		Traces:          "none",
		ConsulKey:       "vpn-sentinel/status",
	}
}

// Load returns defaults overlaid with env files and the environment.
// Missing env files are skipped. With no files given, .env and
// SystemEnvFile are tried.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env", SystemEnvFile}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// Load never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	c := Default()
	if err := c.fromEnv(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) fromEnv() error {
	c.Unit = getenv("SENTINEL_UNIT", c.Unit)
	c.Iface = getenv("SENTINEL_IFACE", c.Iface)
	c.Egress = getenv("SENTINEL_EGRESS", c.Egress)
	c.Subnet = getenv("SENTINEL_SUBNET", c.Subnet)
	c.Proto = getenv("SENTINEL_PROTO", c.Proto)
	c.ConnSource = getenv("SENTINEL_CONN_SOURCE", c.ConnSource)
	c.OpenVPNStatus = getenv("SENTINEL_OPENVPN_STATUS", c.OpenVPNStatus)
	c.DiskPath = getenv("SENTINEL_DISK_PATH", c.DiskPath)
	c.ReadyTarget = getenv("SENTINEL_READY_TARGET", c.ReadyTarget)
	c.AlertLog = getenv("SENTINEL_ALERT_LOG", c.AlertLog)
	c.RoutineLog = getenv("SENTINEL_ROUTINE_LOG", c.RoutineLog)
	c.Journal = getenv("SENTINEL_JOURNAL", c.Journal)
	c.JournalPath = getenv("SENTINEL_JOURNAL_PATH", c.JournalPath)
	c.MySQLDSN = getenv("SENTINEL_MYSQL_DSN", c.MySQLDSN)
	c.Listen = getenv("SENTINEL_LISTEN", c.Listen)
	c.TLSCert = getenv("SENTINEL_TLS_CERT", c.TLSCert)
	c.TLSKey = getenv("SENTINEL_TLS_KEY", c.TLSKey)
	c.TLSClientCA = getenv("SENTINEL_TLS_CLIENT_CA", c.TLSClientCA)
	c.JWTSecret = getenv("SENTINEL_JWT_SECRET", c.JWTSecret)
	c.AdminUser = getenv("SENTINEL_ADMIN_USER", c.AdminUser)
	c.AdminPasswordHash = getenv("SENTINEL_ADMIN_PASSWORD_HASH", c.AdminPasswordHash)
	c.Metrics = getenv("SENTINEL_METRICS", c.Metrics)
	c.Traces = getenv("SENTINEL_TRACES", c.Traces)
	c.ConsulAddr = getenv("SENTINEL_CONSUL_ADDR", c.ConsulAddr)
	c.ConsulKey = getenv("SENTINEL_CONSUL_KEY", c.ConsulKey)
	c.ConsulCheckID = getenv("SENTINEL_CONSUL_CHECK_ID", c.ConsulCheckID)

	var errs []error
	intVar := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	durVar := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolVar := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	intVar("SENTINEL_PORT", &c.Port)
	intVar("SENTINEL_DISK_THRESHOLD", &c.DiskThreshold)
	intVar("SENTINEL_MEMORY_THRESHOLD", &c.MemoryThreshold)
	intVar("SENTINEL_READY_ATTEMPTS", &c.ReadyAttempts)
	durVar("SENTINEL_INTERVAL", &c.Interval)
	durVar("SENTINEL_PROBE_TIMEOUT", &c.ProbeTimeout)
	durVar("SENTINEL_RESTART_GRACE", &c.RestartGrace)
	durVar("SENTINEL_SETTLE_WINDOW", &c.SettleWindow)
	durVar("SENTINEL_READY_INTERVAL", &c.ReadyInterval)
	boolVar("SENTINEL_STRICT_RULES", &c.StrictRules)
	boolVar("SENTINEL_PARALLEL", &c.Parallel)
	return errors.Join(errs...)
}

// RegisterFlags binds the tunables shared by check and monitor to fs,
// using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Unit, "unit", c.Unit, "tunnel service unit (env SENTINEL_UNIT)")
	fs.StringVar(&c.Iface, "iface", c.Iface, "tunnel interface (env SENTINEL_IFACE)")
	fs.StringVar(&c.Egress, "egress", c.Egress, "egress interface, empty to detect from default route")
	fs.StringVar(&c.Subnet, "subnet", c.Subnet, "tunnel client subnet")
	fs.IntVar(&c.Port, "port", c.Port, "tunnel service port")
	fs.StringVar(&c.Proto, "proto", c.Proto, "tunnel service protocol (udp|tcp)")
	fs.BoolVar(&c.StrictRules, "strict-rules", c.StrictRules, "treat a partially present rule set as failed")
	fs.StringVar(&c.ConnSource, "conn-source", c.ConnSource, "connection status source (wireguard|openvpn)")
	fs.StringVar(&c.OpenVPNStatus, "openvpn-status", c.OpenVPNStatus, "openvpn status file")
	fs.StringVar(&c.DiskPath, "disk-path", c.DiskPath, "filesystem checked for disk usage")
	fs.IntVar(&c.DiskThreshold, "disk-threshold", c.DiskThreshold, "disk usage warning threshold in percent")
	fs.IntVar(&c.MemoryThreshold, "memory-threshold", c.MemoryThreshold, "memory usage warning threshold in percent")
	fs.DurationVar(&c.ProbeTimeout, "probe-timeout", c.ProbeTimeout, "timeout per probe")
	fs.DurationVar(&c.RestartGrace, "restart-grace", c.RestartGrace, "wait after a service restart before re-check")
	fs.DurationVar(&c.SettleWindow, "settle-window", c.SettleWindow, "time after service start a missing interface is transitional")
	fs.BoolVar(&c.Parallel, "parallel", c.Parallel, "run probes concurrently")
	fs.StringVar(&c.AlertLog, "alert-log", c.AlertLog, "append-only alert log")
	fs.StringVar(&c.RoutineLog, "log", c.RoutineLog, "routine execution log, empty for stderr only")
	fs.StringVar(&c.Journal, "journal", c.Journal, "cycle journal backend (sqlite|mysql|none)")
	fs.StringVar(&c.JournalPath, "journal-path", c.JournalPath, "sqlite journal path")
	fs.StringVar(&c.MySQLDSN, "mysql-dsn", c.MySQLDSN, "mysql journal DSN")
	fs.StringVar(&c.Metrics, "metrics", c.Metrics, "metrics exporter (prometheus|stdout|otlp|none)")
	fs.StringVar(&c.Traces, "traces", c.Traces, "trace exporter (stdout|otlp|none)")
	fs.StringVar(&c.ConsulAddr, "consul", c.ConsulAddr, "consul address for status publishing")
}

// RegisterMonitorFlags binds the flags only the continuous mode uses.
func (c *Config) RegisterMonitorFlags(fs *flag.FlagSet) {
	fs.DurationVar(&c.Interval, "interval", c.Interval, "pause between cycles")
	fs.StringVar(&c.ReadyTarget, "ready-target", c.ReadyTarget, "host:port polled by the readiness wait")
	fs.DurationVar(&c.ReadyInterval, "ready-interval", c.ReadyInterval, "readiness poll interval")
	fs.IntVar(&c.ReadyAttempts, "ready-attempts", c.ReadyAttempts, "readiness poll attempts")
	fs.StringVar(&c.Listen, "listen", c.Listen, "status API listen address, empty to disable")
	fs.StringVar(&c.TLSCert, "tls-cert", c.TLSCert, "status API TLS certificate")
	fs.StringVar(&c.TLSKey, "tls-key", c.TLSKey, "status API TLS key")
	fs.StringVar(&c.TLSClientCA, "tls-client-ca", c.TLSClientCA, "require client certificates signed by this CA")
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Unit) == "" {
		errs = append(errs, errors.New("unit is required"))
	}
	if strings.TrimSpace(c.Iface) == "" {
		errs = append(errs, errors.New("iface is required"))
	}
	if _, _, err := net.ParseCIDR(c.Subnet); err != nil {
		errs = append(errs, fmt.Errorf("subnet: %w", err))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Proto != "udp" && c.Proto != "tcp" {
		errs = append(errs, fmt.Errorf("proto %q must be udp or tcp", c.Proto))
	}
	if c.DiskThreshold <= 0 || c.DiskThreshold > 100 {
		errs = append(errs, fmt.Errorf("disk threshold %d out of range", c.DiskThreshold))
	}
	if c.MemoryThreshold <= 0 || c.MemoryThreshold > 100 {
		errs = append(errs, fmt.Errorf("memory threshold %d out of range", c.MemoryThreshold))
	}
	for name, d := range map[string]time.Duration{
		"interval":       c.Interval,
		"probe timeout":  c.ProbeTimeout,
		"ready interval": c.ReadyInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.RestartGrace < 0 || c.SettleWindow < 0 {
		errs = append(errs, errors.New("restart grace and settle window must not be negative"))
	}
	if c.ReadyAttempts <= 0 {
		errs = append(errs, errors.New("ready attempts must be positive"))
	}
	switch c.ConnSource {
	case "wireguard", "openvpn":
	default:
		errs = append(errs, fmt.Errorf("conn source %q must be wireguard or openvpn", c.ConnSource))
	}
	switch c.Journal {
	case "sqlite", "none":
	case "mysql":
		if c.MySQLDSN == "" {
			errs = append(errs, errors.New("mysql journal needs a DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("journal %q must be sqlite, mysql or none", c.Journal))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("tls cert and key must be set together"))
	}
	return errors.Join(errs...)
}

// RuleSet returns the firewall rule set for the configured tunnel. egress
// replaces an empty Egress.
func (c Config) RuleSet(egress string) host.RuleSet {
	if c.Egress != "" {
		egress = c.Egress
	}
	return host.RuleSet{
		Iface:  c.Iface,
		Egress: egress,
		CIDR:   c.Subnet,
		Port:   c.Port,
		Proto:  c.Proto,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
