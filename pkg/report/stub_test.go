//go:build !consul

package report

import (
	"errors"
	"testing"
)

func TestNewPublisher_Disabled(t *testing.T) {
	if Enabled() {
		t.Fatal("Enabled() = true without consul tag")
	}
	if _, err := NewPublisher("127.0.0.1:8500", "vpn-sentinel/status", ""); !errors.Is(err, ErrDisabled) {
		t.Errorf("NewPublisher() error = %v, want ErrDisabled", err)
	}
}
