// Package report publishes cycle summaries to an external registry so a
// fleet of gateways can be watched from one place.
package report

import (
	"context"
	"errors"
	"log"

	"vpn-sentinel/pkg/model"
)

// ErrDisabled is returned when publishing is requested in a build without
// the consul tag.
var ErrDisabled = errors.New("report: built without consul support")

// Publisher pushes a finished cycle somewhere.
type Publisher interface {
	Publish(ctx context.Context, s model.RunSummary) error
}

// Hook adapts p to a per-cycle callback. Publish failures are logged and
// never affect the cycle.
func Hook(p Publisher) func(context.Context, model.RunSummary) {
	return func(ctx context.Context, s model.RunSummary) {
		if err := p.Publish(ctx, s); err != nil {
			log.Printf("publish summary failed: %v", err)
		}
	}
}

// checkStatus maps a cycle status to a TTL check state.
func checkStatus(s model.CycleStatus) string {
	switch s {
	case model.CycleOK:
		return "passing"
	case model.CycleWarning:
		return "warning"
	}
	return "critical"
}
