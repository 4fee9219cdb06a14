package report

import (
	"context"
	"errors"
	"testing"

	"vpn-sentinel/pkg/model"
)

type countingPublisher struct {
	calls int
	err   error
}

func (p *countingPublisher) Publish(context.Context, model.RunSummary) error {
	p.calls++
	return p.err
}

func TestHook_SwallowsErrors(t *testing.T) {
	p := &countingPublisher{err: errors.New("agent unreachable")}
	h := Hook(p)
	h(context.Background(), model.RunSummary{})
	h(context.Background(), model.RunSummary{})
	if p.calls != 2 {
		t.Errorf("calls = %d, want 2", p.calls)
	}
}

func TestCheckStatus(t *testing.T) {
	tests := map[model.CycleStatus]string{
		model.CycleOK:      "passing",
		model.CycleWarning: "warning",
		model.CycleAlert:   "critical",
	}
	for in, want := range tests {
		if got := checkStatus(in); got != want {
			t.Errorf("checkStatus(%s) = %s, want %s", in, got, want)
		}
	}
}
