// Package unit registers the continuous monitor as a systemd service that
// starts at boot and restarts on crash.
package unit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"vpn-sentinel/pkg/host"
)

const (
	DefaultName = "vpn-sentinel"
	DefaultDir  = "/etc/systemd/system"
)

// Spec describes the unit to render.
type Spec struct {
	Name     string   // unit name without .service
	ExecPath string   // absolute path of the sentinel binary
	Args     []string // arguments after "monitor"
	After    string   // unit the monitor starts after, usually the tunnel unit
	EnvFile  string
}

var unitTmpl = template.Must(template.New("unit").Parse(`[Unit]
Description=VPN gateway health sentinel
Wants=network-online.target
After=network-online.target{{if .After}} {{.After}}{{end}}

[Service]
Type=simple
{{- if .EnvFile}}
EnvironmentFile=-{{.EnvFile}}
{{- end}}
ExecStart={{.ExecStart}}
Restart=on-failure
RestartSec=10

[Install]
WantedBy=multi-user.target
`))

// Render returns the unit file text. The monitor always waits for
// readiness first since the unit runs during boot.
func Render(s Spec) (string, error) {
	if s.ExecPath == "" || !filepath.IsAbs(s.ExecPath) {
		return "", fmt.Errorf("unit: exec path must be absolute, got %q", s.ExecPath)
	}
	args := append([]string{s.ExecPath, "monitor", "-wait-ready"}, s.Args...)
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"") {
			args[i] = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
	}
	var buf bytes.Buffer
	err := unitTmpl.Execute(&buf, struct {
		Spec
		ExecStart string
	}{s, strings.Join(args, " ")})
	return buf.String(), err
}

// Installer writes, enables and removes the unit.
type Installer struct {
	Dir    string // Default: /etc/systemd/system
	Runner host.Runner
}

func (in Installer) path(name string) string {
	dir := in.Dir
	if dir == "" {
		dir = DefaultDir
	}
	if name == "" {
		name = DefaultName
	}
	return filepath.Join(dir, name+".service")
}

func (in Installer) runner() host.Runner {
	if in.Runner == nil {
		return host.ExecRunner{}
	}
	return in.Runner
}

// Install writes the unit, reloads systemd and enables it now. It returns
// the unit path.
func (in Installer) Install(ctx context.Context, s Spec) (string, error) {
	text, err := Render(s)
	if err != nil {
		return "", err
	}
	p := in.path(s.Name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write unit: %w", err)
	}
	r := in.runner()
	if _, err := r.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return p, fmt.Errorf("daemon-reload: %w", err)
	}
	if _, err := r.Run(ctx, "systemctl", "enable", "--now", filepath.Base(p)); err != nil {
		return p, fmt.Errorf("enable %s: %w", filepath.Base(p), err)
	}
	log.Printf("service installed: %s", p)
	return p, nil
}

// Remove disables the unit and deletes the file. A missing unit is not an error.
func (in Installer) Remove(ctx context.Context, name string) error {
	p := in.path(name)
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	r := in.runner()
	if _, err := r.Run(ctx, "systemctl", "disable", "--now", filepath.Base(p)); err != nil {
		log.Printf("disable %s failed: %v", filepath.Base(p), err)
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("remove unit: %w", err)
	}
	if _, err := r.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	log.Printf("service removed: %s", p)
	return nil
}
