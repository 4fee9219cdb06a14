package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"vpn-sentinel/pkg/alert"
	"vpn-sentinel/pkg/api"
	"vpn-sentinel/pkg/config"
	"vpn-sentinel/pkg/engine"
	"vpn-sentinel/pkg/host"
	"vpn-sentinel/pkg/journal"
	"vpn-sentinel/pkg/model"
	"vpn-sentinel/pkg/probe"
	"vpn-sentinel/pkg/report"
	"vpn-sentinel/pkg/scheduler"
	"vpn-sentinel/pkg/telemetry"
)

// app holds everything a check or monitor run needs.
type app struct {
	cfg     config.Config
	sink    *alert.Sink
	sched   *scheduler.Scheduler
	journal journal.Journal
	tel     *telemetry.Telemetry
	hub     *api.AlertHub

	logFile    *os.File
	stopAlerts func()
	alertsDone sync.WaitGroup
}

// openRoutineLog sends the standard logger to stderr and, when path is set,
// to the routine log file as well.
func openRoutineLog(path string) (io.Writer, *os.File, error) {
	if path == "" {
		return os.Stderr, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open routine log: %w", err)
	}
	return io.MultiWriter(os.Stderr, f), f, nil
}

func connections(cfg config.Config) host.Connections {
	if cfg.ConnSource == "openvpn" {
		return host.OpenVPNStatus{Path: cfg.OpenVPNStatus}
	}
	return host.WireGuardPeers{Iface: cfg.Iface, Window: host.DefaultHandshakeWindow}
}

// newApp wires host collaborators, probes, engine, sink and the optional
// journal, telemetry and consul publisher.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, hub: api.NewAlertHub()}

	w, f, err := openRoutineLog(cfg.RoutineLog)
	if err != nil {
		return nil, err
	}
	a.logFile = f
	log.SetOutput(w)
	logger := log.New(w, "", log.LstdFlags)

	runner := host.ExecRunner{}
	egress := cfg.Egress
	if egress == "" {
		egress = host.DefaultRouteDevice(ctx, runner)
		if egress == "" {
			a.Close()
			return nil, errors.New("cannot detect egress interface from the default route, set -egress")
		}
		log.Printf("egress interface detected: %s", egress)
	}
	rules := cfg.RuleSet(egress)
	if err := rules.Validate(); err != nil {
		a.Close()
		return nil, err
	}

	svc := host.Systemd{Runner: runner}
	fw := host.Iptables{Runner: runner}
	kernel := host.Sysctl{}
	probes := probe.Standard(probe.Config{
		Unit:            cfg.Unit,
		Iface:           cfg.Iface,
		Rules:           rules,
		StrictRules:     cfg.StrictRules,
		SettleWindow:    cfg.SettleWindow,
		DiskPath:        cfg.DiskPath,
		DiskThreshold:   cfg.DiskThreshold,
		MemoryThreshold: cfg.MemoryThreshold,
	}, probe.Deps{
		Service:     svc,
		Links:       host.Links{},
		Firewall:    fw,
		Kernel:      kernel,
		Resources:   host.ProcResources{},
		Connections: connections(cfg),
	})

	checker, err := engine.NewChecker(probes, engine.CheckerConfig{Timeout: cfg.ProbeTimeout, Parallel: cfg.Parallel})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sink, err = alert.Open(cfg.AlertLog, os.Stdout)
	if err != nil {
		a.Close()
		return nil, err
	}

	repairer, err := engine.NewRepairer(checker, a.sink,
		engine.StandardActions(cfg.Unit, rules, cfg.RestartGrace, svc, fw, kernel)...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.journal, err = journal.Open(ctx, cfg.Journal, cfg.JournalPath, cfg.MySQLDSN)
	if err != nil {
		// the journal is history only; a broken one must not stop health checks
		log.Printf("journal unavailable, continuing without: %v", err)
		a.journal = journal.Nop{}
	}

	a.tel, err = telemetry.New(ctx, telemetry.Config{Metrics: cfg.Metrics, Traces: cfg.Traces})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sched = scheduler.New(checker, repairer, a.sink, scheduler.Config{Interval: cfg.Interval, Logger: logger})
	a.sched.OnCycle(a.tel.RecordCycle)
	a.sched.OnCycle(func(ctx context.Context, s model.RunSummary) {
		if err := a.journal.SaveCycle(ctx, s); err != nil {
			log.Printf("journal save cycle failed: %v", err)
		}
	})

	switch {
	case cfg.ConsulAddr == "":
	case !report.Enabled():
		log.Printf("consul address set but binary built without consul support, skipping")
	default:
		pub, err := report.NewPublisher(cfg.ConsulAddr, cfg.ConsulKey, cfg.ConsulCheckID)
		if err != nil {
			log.Printf("consul publisher init failed: %v", err)
		} else {
			a.sched.OnCycle(report.Hook(pub))
		}
	}

	// one subscription feeds the live stream, the other journal and metrics
	streamCh, stopStream := a.sink.Subscribe(64)
	recordCh, stopRecord := a.sink.Subscribe(64)
	a.stopAlerts = func() {
		stopStream()
		stopRecord()
	}
	a.alertsDone.Add(2)
	go func() {
		defer a.alertsDone.Done()
		a.hub.Run(context.Background(), streamCh)
	}()
	go func() {
		defer a.alertsDone.Done()
		for rec := range recordCh {
			bg := context.Background()
			if err := a.journal.SaveAlert(bg, rec); err != nil {
				log.Printf("journal save alert failed: %v", err)
			}
			a.tel.RecordAlert(bg, rec)
		}
	}()
	return a, nil
}

// Close drains the alert fan-out, then releases sink, journal, telemetry
// and the routine log in that order.
func (a *app) Close() {
	if a.stopAlerts != nil {
		a.stopAlerts()
		a.alertsDone.Wait()
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			log.Printf("close alert log: %v", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.Printf("close journal: %v", err)
		}
	}
	if a.tel != nil {
		if err := a.tel.Shutdown(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}
	if a.logFile != nil {
		log.SetOutput(os.Stderr)
		_ = a.logFile.Close()
	}
}
