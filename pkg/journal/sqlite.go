package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vpn-sentinel/pkg/model"
)

// DefaultSQLitePath is where the journal lives on the host.
const DefaultSQLitePath = "/var/lib/vpn-sentinel/journal.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cycles(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started INTEGER NOT NULL,
	finished INTEGER NOT NULL,
	status TEXT NOT NULL,
	failed INTEGER NOT NULL,
	warned INTEGER NOT NULL,
	summary TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started);
CREATE TABLE IF NOT EXISTS alerts(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	severity TEXT NOT NULL,
	message TEXT NOT NULL
);`

// SQLite is a journal in a local sqlite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the journal at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) SaveCycle(ctx context.Context, s model.RunSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO cycles(started, finished, status, failed, warned, summary) VALUES(?,?,?,?,?,?)`,
		s.StartedAt.UnixNano(), s.FinishedAt.UnixNano(), string(s.Status), s.Failed, s.Warned, string(data))
	return err
}

func (j *SQLite) SaveAlert(ctx context.Context, a model.AlertRecord) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO alerts(ts, severity, message) VALUES(?,?,?)`,
		a.Timestamp.UnixNano(), string(a.Severity), a.Message)
	return err
}

func (j *SQLite) Cycles(ctx context.Context, limit int) ([]model.RunSummary, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT summary FROM cycles ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RunSummary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var s model.RunSummary
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (j *SQLite) Alerts(ctx context.Context, limit int) ([]model.AlertRecord, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT ts, severity, message FROM alerts ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AlertRecord
	for rows.Next() {
		var (
			ts       int64
			severity string
			message  string
		)
		if err := rows.Scan(&ts, &severity, &message); err != nil {
			return nil, err
		}
		out = append(out, model.AlertRecord{
			Severity:  model.Severity(severity),
			Message:   message,
			Timestamp: time.Unix(0, ts).UTC(),
		})
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
