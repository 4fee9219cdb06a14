package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultRuleStatePath = "/var/lib/vpn-sentinel/rule_state.json"
	defaultRulesSavePath = "/etc/iptables/rules.v4"
)

// RuleSet describes the rules the gateway needs for the tunnel subnet.
type RuleSet struct {
	Iface  string `json:"iface"`  // tunnel interface, e.g. wg0 or tun0
	Egress string `json:"egress"` // WAN interface used for masquerade
	CIDR   string `json:"cidr"`   // tunnel client subnet
	Port   int    `json:"port"`   // service listen port
	Proto  string `json:"proto"`  // udp|tcp
}

// Rule is a single iptables rule in a table/chain.
type Rule struct {
	Table string
	Chain string
	Spec  []string
}

func (r Rule) args(op string) []string {
	args := make([]string, 0, len(r.Spec)+4)
	if r.Table != "" && r.Table != "filter" {
		args = append(args, "-t", r.Table)
	}
	args = append(args, op, r.Chain)
	return append(args, r.Spec...)
}

func (r Rule) key() string {
	return r.Table + " " + r.Chain + " " + strings.Join(r.Spec, " ")
}

// Rules expands the set into concrete rules: masquerade for the subnet,
// accept for the service port and tunnel interface, and both forwarding
// directions.
func (rs RuleSet) Rules() []Rule {
	proto := rs.Proto
	if proto == "" {
		proto = "udp"
	}
	return []Rule{
		{Table: "nat", Chain: "POSTROUTING", Spec: []string{"-s", rs.CIDR, "-o", rs.Egress, "-j", "MASQUERADE"}},
		{Table: "filter", Chain: "INPUT", Spec: []string{"-p", proto, "--dport", strconv.Itoa(rs.Port), "-j", "ACCEPT"}},
		{Table: "filter", Chain: "INPUT", Spec: []string{"-i", rs.Iface, "-j", "ACCEPT"}},
		{Table: "filter", Chain: "FORWARD", Spec: []string{"-i", rs.Iface, "-o", rs.Egress, "-j", "ACCEPT"}},
		{Table: "filter", Chain: "FORWARD", Spec: []string{"-i", rs.Egress, "-o", rs.Iface, "-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"}},
	}
}

// Validate rejects sets that would render meaningless rules.
func (rs RuleSet) Validate() error {
	switch {
	case rs.Iface == "":
		return fmt.Errorf("rule set: tunnel interface is required")
	case rs.Egress == "":
		return fmt.Errorf("rule set: egress interface is required")
	case rs.CIDR == "":
		return fmt.Errorf("rule set: tunnel subnet is required")
	case rs.Port <= 0 || rs.Port > 65535:
		return fmt.Errorf("rule set: invalid port %d", rs.Port)
	}
	return nil
}

// Iptables manages rules with the iptables CLI.
type Iptables struct {
	Runner Runner
	// StatePath remembers the last installed set so stale rules are removed
	// when the configuration changes.
	StatePath string
	// SavePath is where iptables-save output goes when netfilter-persistent is absent.
	SavePath string
	// LookPath resolves binaries. Default: exec.LookPath
	LookPath func(string) (string, error)
}

func (f Iptables) lookPath(name string) (string, error) {
	if f.LookPath != nil {
		return f.LookPath(name)
	}
	return exec.LookPath(name)
}

// CountMatching returns how many rules of rs are present in the active table.
func (f Iptables) CountMatching(ctx context.Context, rs RuleSet) (int, error) {
	n := 0
	for _, r := range rs.Rules() {
		ok, err := f.exists(ctx, r)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (f Iptables) exists(ctx context.Context, r Rule) (bool, error) {
	_, err := runnerOrDefault(f.Runner).Run(ctx, "iptables", r.args("-C")...)
	if err == nil {
		return true, nil
	}
	if code, ok := ExitCode(err); ok && code == 1 {
		return false, nil
	}
	return false, fmt.Errorf("iptables check %s/%s: %w", r.Table, r.Chain, err)
}

// Install ensures every rule in rs is present. Rules are checked before they
// are appended so repeated installs never duplicate entries; a failure part
// way leaves the remaining rules missing, which the next count detects.
// Rules of a previously installed set are removed only after the whole new
// set is in place, and only where the new set does not share them.
func (f Iptables) Install(ctx context.Context, rs RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	for _, r := range rs.Rules() {
		if err := f.ensure(ctx, r); err != nil {
			return err
		}
	}
	if prev := f.loadState(); prev.Iface != "" && prev != rs {
		f.cleanup(ctx, prev, rs)
	}
	if err := f.saveState(rs); err != nil {
		log.Printf("save rule state failed: %v", err)
	}
	log.Printf("rules ensured for %s via %s (cidr=%s port=%d)", rs.Iface, rs.Egress, rs.CIDR, rs.Port)
	return nil
}

func (f Iptables) ensure(ctx context.Context, r Rule) error {
	ok, err := f.exists(ctx, r)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := runnerOrDefault(f.Runner).Run(ctx, "iptables", r.args("-A")...); err != nil {
		return fmt.Errorf("add %s/%s %v: %w", r.Table, r.Chain, r.Spec, err)
	}
	return nil
}

// cleanup removes the rules of prev that are not part of keep. Missing
// rules are ignored.
func (f Iptables) cleanup(ctx context.Context, prev, keep RuleSet) {
	if prev.Iface == "" || prev.Egress == "" || prev.CIDR == "" {
		return
	}
	wanted := make(map[string]bool)
	for _, r := range keep.Rules() {
		wanted[r.key()] = true
	}
	for _, r := range prev.Rules() {
		if wanted[r.key()] {
			continue
		}
		_, err := runnerOrDefault(f.Runner).Run(ctx, "iptables", r.args("-D")...)
		if code, ok := ExitCode(err); err != nil && !(ok && code == 1) {
			log.Printf("remove stale rule %s/%s %v: %v", r.Table, r.Chain, r.Spec, err)
		}
	}
}

// Persist saves the active table with netfilter-persistent, or with
// iptables-save into SavePath when its directory exists.
func (f Iptables) Persist(ctx context.Context) error {
	r := runnerOrDefault(f.Runner)
	if _, err := f.lookPath("netfilter-persistent"); err == nil {
		if _, err := r.Run(ctx, "netfilter-persistent", "save"); err != nil {
			return fmt.Errorf("netfilter-persistent save: %w", err)
		}
		return nil
	}
	savePath := f.SavePath
	if savePath == "" {
		savePath = defaultRulesSavePath
	}
	if _, err := f.lookPath("iptables-save"); err != nil {
		return ErrNoPersistence
	}
	if _, err := os.Stat(filepath.Dir(savePath)); err != nil {
		return ErrNoPersistence
	}
	out, err := r.Run(ctx, "iptables-save")
	if err != nil {
		return fmt.Errorf("iptables-save: %w", err)
	}
	tmp := savePath + ".tmp"
	if err := os.WriteFile(tmp, out, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, savePath); err != nil {
		return fmt.Errorf("rename %s: %w", savePath, err)
	}
	return nil
}

func (f Iptables) statePath() string {
	if f.StatePath == "" {
		return defaultRuleStatePath
	}
	return f.StatePath
}

func (f Iptables) loadState() RuleSet {
	data, err := os.ReadFile(f.statePath())
	if err != nil {
		return RuleSet{}
	}
	var s RuleSet
	if err := json.Unmarshal(data, &s); err != nil {
		return RuleSet{}
	}
	return s
}

func (f Iptables) saveState(s RuleSet) error {
	p := f.statePath()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}
