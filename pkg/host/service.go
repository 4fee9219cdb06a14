package host

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/procfs"
)

// Systemd controls units through systemctl.
type Systemd struct {
	Runner Runner
	// ProcRoot is the procfs mount used to resolve boot time. Default: /proc
	ProcRoot string
}

// IsActive reports whether the unit is in the active state. Inactive, failed
// or unknown units (is-active exit 3 or 4) are not an error. Any other exit,
// a killed query or a missing systemctl is.
func (s Systemd) IsActive(ctx context.Context, unit string) (bool, error) {
	out, err := runnerOrDefault(s.Runner).Run(ctx, "systemctl", "is-active", unit)
	if err != nil {
		if code, ok := ExitCode(err); ok && (code == 3 || code == 4) {
			return false, nil
		}
		return false, fmt.Errorf("is-active %s: %w", unit, err)
	}
	return strings.TrimSpace(string(out)) == "active", nil
}

// ActiveSince derives the activation wall time from the unit's monotonic
// activation stamp and the kernel boot time.
func (s Systemd) ActiveSince(ctx context.Context, unit string) (time.Time, error) {
	out, err := runnerOrDefault(s.Runner).Run(ctx, "systemctl", "show", "--property=ActiveEnterTimestampMonotonic", "--value", unit)
	if err != nil {
		return time.Time{}, err
	}
	usec, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse activation stamp for %s: %w", unit, err)
	}
	if usec == 0 {
		return time.Time{}, nil
	}
	boot, err := bootTime(s.ProcRoot)
	if err != nil {
		return time.Time{}, err
	}
	return boot.Add(time.Duration(usec) * time.Microsecond), nil
}

// Restart restarts the unit.
func (s Systemd) Restart(ctx context.Context, unit string) error {
	if _, err := runnerOrDefault(s.Runner).Run(ctx, "systemctl", "restart", unit); err != nil {
		return fmt.Errorf("restart %s: %w", unit, err)
	}
	return nil
}

func bootTime(procRoot string) (time.Time, error) {
	if procRoot == "" {
		procRoot = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return time.Time{}, fmt.Errorf("open procfs: %w", err)
	}
	st, err := fs.Stat()
	if err != nil {
		return time.Time{}, fmt.Errorf("read stat: %w", err)
	}
	return time.Unix(int64(st.BootTime), 0), nil
}
