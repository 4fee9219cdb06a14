// Package journal keeps a queryable history of cycles and alert records
// next to the plain-text logs.
package journal

import (
	"context"
	"fmt"

	"vpn-sentinel/pkg/model"
)

// Journal stores cycle summaries and alert records.
type Journal interface {
	SaveCycle(ctx context.Context, s model.RunSummary) error
	SaveAlert(ctx context.Context, a model.AlertRecord) error
	// Cycles returns up to limit summaries, newest first.
	Cycles(ctx context.Context, limit int) ([]model.RunSummary, error)
	// Alerts returns up to limit records, newest first.
	Alerts(ctx context.Context, limit int) ([]model.AlertRecord, error)
	Close() error
}

// Open returns the journal backend by name: sqlite, mysql or none.
func Open(ctx context.Context, backend, path, dsn string) (Journal, error) {
	switch backend {
	case "sqlite":
		return OpenSQLite(ctx, path)
	case "mysql":
		return OpenMySQL(dsn)
	case "none", "":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("journal: unknown backend %q", backend)
}

// Nop discards everything.
type Nop struct{}

func (Nop) SaveCycle(context.Context, model.RunSummary) error  { return nil }
func (Nop) SaveAlert(context.Context, model.AlertRecord) error { return nil }
func (Nop) Cycles(context.Context, int) ([]model.RunSummary, error) {
	return nil, nil
}
func (Nop) Alerts(context.Context, int) ([]model.AlertRecord, error) {
	return nil, nil
}
func (Nop) Close() error { return nil }

const defaultLimit = 50

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultLimit
	}
	return limit
}
