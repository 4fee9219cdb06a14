//go:build consul

package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	consulapi "github.com/hashicorp/consul/api"

	"vpn-sentinel/pkg/model"
)

// Enabled reports whether consul publishing is compiled in.
func Enabled() bool { return true }

// Consul writes the summary to KV under prefix/<hostname> and, when a check
// ID is set, updates that TTL check with the cycle status.
type Consul struct {
	cli     *consulapi.Client
	key     string
	checkID string
}

// NewPublisher connects to the agent at addr.
func NewPublisher(addr, prefix, checkID string) (Publisher, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	if token := os.Getenv("CONSUL_HTTP_TOKEN"); token != "" {
		cfg.Token = token
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	return &Consul{cli: cli, key: prefix + "/" + host, checkID: checkID}, nil
}

func (c *Consul) Publish(ctx context.Context, s model.RunSummary) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	opts := (&consulapi.WriteOptions{}).WithContext(ctx)
	if _, err := c.cli.KV().Put(&consulapi.KVPair{Key: c.key, Value: b}, opts); err != nil {
		return fmt.Errorf("kv put %s: %w", c.key, err)
	}
	if c.checkID == "" {
		return nil
	}
	output := fmt.Sprintf("passed=%d failed=%d warned=%d", s.Passed, s.Failed, s.Warned)
	if err := c.cli.Agent().UpdateTTL(c.checkID, output, checkStatus(s.Status)); err != nil {
		return fmt.Errorf("update check %s: %w", c.checkID, err)
	}
	return nil
}
