package model

import (
	"context"
	"strings"
	"time"
)

// Severity ranks an alert record.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityAlert   Severity = "ALERT"
)

// ParseSeverity maps a case-insensitive name to a Severity, defaulting to Info.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WARNING", "WARN":
		return SeverityWarning
	case "ALERT":
		return SeverityAlert
	default:
		return SeverityInfo
	}
}

// AlertRecord is one append-only alert log entry.
type AlertRecord struct {
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Line renders the record as a plain timestamped log line.
func (a AlertRecord) Line() string {
	return a.Timestamp.UTC().Format(time.RFC3339Nano) + " [" + string(a.Severity) + "] " + a.Message
}

// ReadinessWaitConfig drives the boot-time readiness wait.
type ReadinessWaitConfig struct {
	Probe       func(ctx context.Context) bool
	Interval    time.Duration
	MaxAttempts int
}
