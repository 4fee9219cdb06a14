package model

import (
	"testing"
	"time"
)

func results(statuses ...Status) []CheckResult {
	out := make([]CheckResult, len(statuses))
	for i, st := range statuses {
		out[i] = CheckResult{Probe: string(rune('a' + i)), Status: st}
	}
	return out
}

func TestRecount(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		repairs []RepairOutcome
		want    CycleStatus
	}{
		{"all pass", results(StatusPass, StatusPass), nil, CycleOK},
		{"warn only", results(StatusPass, StatusWarn), nil, CycleWarning},
		{"fail", results(StatusFail, StatusWarn), nil, CycleAlert},
		{"persist failure", results(StatusPass), []RepairOutcome{{Probe: "a", Converged: true, Kind: "persist"}}, CycleWarning},
		{"not converged", results(StatusPass), []RepairOutcome{{Probe: "a", Kind: "apply"}}, CycleAlert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRunSummary(tt.results, time.Now(), time.Now())
			s.Repairs = tt.repairs
			s.Recount()
			if s.Status != tt.want {
				t.Errorf("Status = %s, want %s", s.Status, tt.want)
			}
			if s.Passed+s.Failed+s.Warned != s.Total || s.Total != len(tt.results) {
				t.Errorf("counts = %d+%d+%d of %d", s.Passed, s.Failed, s.Warned, s.Total)
			}
		})
	}
}

func TestReplaceAndClone(t *testing.T) {
	s := NewRunSummary(results(StatusFail, StatusPass), time.Now(), time.Now())
	c := s.Clone()
	c.Replace(CheckResult{Probe: "a", Status: StatusPass})
	c.Replace(CheckResult{Probe: "zz", Status: StatusFail})

	if c.Failed != 0 || c.Status != CycleOK || c.Total != 2 {
		t.Errorf("clone after replace = %+v", c)
	}
	if s.Results[0].Status != StatusFail || s.Failed != 1 {
		t.Error("Replace on a clone mutated the original")
	}
	if !s.Unresolved() || c.Unresolved() {
		t.Error("Unresolved() mismatch")
	}
}

func TestAlertRecordLine(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 5, time.UTC)
	got := AlertRecord{Severity: SeverityAlert, Message: "interface_up failed", Timestamp: ts}.Line()
	want := "2024-03-01T12:00:00.000000005Z [ALERT] interface_up failed"
	if got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}
	for in, want := range map[string]Severity{"warn": SeverityWarning, "ALERT": SeverityAlert, "x": SeverityInfo} {
		if got := ParseSeverity(in); got != want {
			t.Errorf("ParseSeverity(%q) = %s, want %s", in, got, want)
		}
	}
}
