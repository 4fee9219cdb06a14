// Command sentinel keeps a VPN gateway healthy: it checks the tunnel service,
// interface, NAT rules and forwarding flag, repairs what it safely can and
// records the rest for a human.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"vpn-sentinel/pkg/alert"
	"vpn-sentinel/pkg/api"
	"vpn-sentinel/pkg/auth"
	"vpn-sentinel/pkg/config"
	"vpn-sentinel/pkg/host"
	"vpn-sentinel/pkg/journal"
	"vpn-sentinel/pkg/model"
	"vpn-sentinel/pkg/scheduler"
	"vpn-sentinel/pkg/unit"
	"vpn-sentinel/pkg/version"
)

const usageText = `usage: sentinel <command> [flags]

commands:
  check              run one cycle, print a table, exit 1 if a failure remains
  monitor            run cycles until interrupted
  install-service    install and start the systemd unit running monitor
  uninstall-service  stop and remove the systemd unit
  history            show recent cycles or alerts
  hash-password      print a bcrypt hash for the status API admin
  version            print version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	code := 0
	switch cmd {
	case "check":
		code, err = runCheck(args)
	case "monitor":
		err = runMonitor(args)
	case "install-service":
		err = runInstall(args)
	case "uninstall-service":
		err = runUninstall(args)
	case "history":
		err = runHistory(args)
	case "hash-password":
		err = runHashPassword(args)
	case "version", "-v", "--version":
		fmt.Println(version.String())
	case "help", "-h", "--help":
		fmt.Print(usageText)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usageText)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
	os.Exit(code)
}

// loadConfig reads env files and the environment, then parses args over it.
func loadConfig(name string, args []string, extra func(*flag.FlagSet, *config.Config)) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfg.RegisterFlags(fs)
	if extra != nil {
		extra(fs, &cfg)
	}
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runCheck(args []string) (int, error) {
	cfg, err := loadConfig("check", args, nil)
	if err != nil {
		return 0, err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer a.Close()

	s := a.sched.RunOnce(ctx)
	if err := scheduler.PrintTable(os.Stdout, s); err != nil {
		return 0, err
	}
	if s.Unresolved() {
		return 1, nil
	}
	return 0, nil
}

func runMonitor(args []string) error {
	var waitReady bool
	cfg, err := loadConfig("monitor", args, func(fs *flag.FlagSet, c *config.Config) {
		c.RegisterMonitorFlags(fs)
		fs.BoolVar(&waitReady, "wait-ready", false, "poll network readiness before the first cycle")
	})
	if err != nil {
		return err
	}
	tlsCfg, err := api.ServerTLSConfig(cfg.TLSCert, cfg.TLSKey, cfg.TLSClientCA)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Printf("monitor start version=%s interval=%s unit=%s iface=%s", version.Build, cfg.Interval, cfg.Unit, cfg.Iface)
	if waitReady {
		a.sched.WaitReady(ctx, model.ReadinessWaitConfig{
			Probe:       host.TCPReachable(cfg.ReadyTarget, cfg.ReadyInterval),
			Interval:    cfg.ReadyInterval,
			MaxAttempts: cfg.ReadyAttempts,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sched.Monitor(gctx) })
	if cfg.Listen != "" {
		srv := &api.Server{
			Status:    a.sched,
			Journal:   a.journal,
			Hub:       a.hub,
			Metrics:   a.tel.Handler(),
			AdminUser: cfg.AdminUser,
			AdminHash: cfg.AdminPasswordHash,
		}
		if cfg.JWTSecret != "" {
			srv.Issuer = auth.NewIssuer(cfg.JWTSecret, auth.DefaultTTL)
		}
		log.Printf("status api listening on %s tls=%v", cfg.Listen, tlsCfg != nil)
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Listen, tlsCfg) })
	}
	err = g.Wait()
	log.Printf("monitor stopped")
	return err
}

func runInstall(args []string) error {
	fs := flag.NewFlagSet("install-service", flag.ExitOnError)
	name := fs.String("name", unit.DefaultName, "unit name")
	dir := fs.String("dir", unit.DefaultDir, "systemd unit directory")
	tunnel := fs.String("unit", envOr("SENTINEL_UNIT", config.Default().Unit), "tunnel unit the monitor starts after")
	envFile := fs.String("env-file", config.SystemEnvFile, "environment file read by the unit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	in := unit.Installer{Dir: *dir, Runner: host.ExecRunner{}}
	path, err := in.Install(context.Background(), unit.Spec{
		Name:     *name,
		ExecPath: exe,
		Args:     fs.Args(),
		After:    *tunnel + ".service",
		EnvFile:  *envFile,
	})
	if err != nil {
		return err
	}
	log.Printf("installed %s and enabled %s", path, *name)
	return nil
}

func runUninstall(args []string) error {
	fs := flag.NewFlagSet("uninstall-service", flag.ExitOnError)
	name := fs.String("name", unit.DefaultName, "unit name")
	dir := fs.String("dir", unit.DefaultDir, "systemd unit directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in := unit.Installer{Dir: *dir, Runner: host.ExecRunner{}}
	if err := in.Remove(context.Background(), *name); err != nil {
		return err
	}
	log.Printf("removed %s", *name)
	return nil
}

func runHistory(args []string) error {
	var limit int
	var alerts bool
	cfg, err := loadConfig("history", args, func(fs *flag.FlagSet, _ *config.Config) {
		fs.IntVar(&limit, "limit", 20, "number of entries")
		fs.BoolVar(&alerts, "alerts", false, "show alert records instead of cycles")
	})
	if err != nil {
		return err
	}
	ctx := context.Background()

	if cfg.Journal == "none" {
		if !alerts {
			return errors.New("cycle history needs a journal, use -alerts to read the alert log")
		}
		recs, err := alert.ReadTail(cfg.AlertLog, limit)
		if err != nil {
			return err
		}
		printAlerts(recs)
		return nil
	}

	j, err := journal.Open(ctx, cfg.Journal, cfg.JournalPath, cfg.MySQLDSN)
	if err != nil {
		return err
	}
	defer j.Close()
	if alerts {
		recs, err := j.Alerts(ctx, limit)
		if err != nil {
			return err
		}
		printAlerts(recs)
		return nil
	}
	cycles, err := j.Cycles(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tPASS\tWARN\tFAIL\tREPAIRS\tDURATION")
	for _, s := range cycles {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.StartedAt.Local().Format(time.DateTime), s.Status, s.Passed, s.Warned, s.Failed,
			len(s.Repairs), s.Duration().Round(time.Millisecond))
	}
	return tw.Flush()
}

func printAlerts(recs []model.AlertRecord) {
	for _, r := range recs {
		fmt.Println(r.Line())
	}
}

func runHashPassword(args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw := fs.Arg(0)
	if pw == "" {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		pw = strings.TrimSpace(line)
	}
	if pw == "" {
		return errors.New("empty password")
	}
	hash, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
