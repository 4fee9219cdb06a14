package model

import "time"

// Status is the outcome of a single probe.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn" // soft condition, never repaired
)

// CheckResult captures one probe observation.
type CheckResult struct {
	Probe      string    `json:"probe"`
	Status     Status    `json:"status"`
	Message    string    `json:"message"`
	ObservedAt time.Time `json:"observedAt"`
}

// CycleStatus is the overall verdict of a cycle once repairs have been attempted.
type CycleStatus string

const (
	CycleOK      CycleStatus = "ok"
	CycleWarning CycleStatus = "warning" // warn results or best-effort follow-ups failed
	CycleAlert   CycleStatus = "alert"   // at least one Fail remains, a human must look
)

// RepairOutcome records what happened to a single repair attempt within a cycle.
type RepairOutcome struct {
	Probe     string `json:"probe"`
	Converged bool   `json:"converged"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"` // apply|verify|persist
}

// RunSummary aggregates one cycle. Results keep probe declaration order.
type RunSummary struct {
	Results    []CheckResult   `json:"results"`
	Total      int             `json:"total"`
	Passed     int             `json:"passed"`
	Failed     int             `json:"failed"`
	Warned     int             `json:"warned"`
	Repairs    []RepairOutcome `json:"repairs,omitempty"`
	Status     CycleStatus     `json:"status"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// NewRunSummary builds a summary from ordered results and computes the counters.
func NewRunSummary(results []CheckResult, started, finished time.Time) RunSummary {
	s := RunSummary{
		Results:    results,
		StartedAt:  started,
		FinishedAt: finished,
	}
	s.Recount()
	return s
}

// Recount recomputes the counters and the cycle status from Results and Repairs.
func (s *RunSummary) Recount() {
	s.Total = len(s.Results)
	s.Passed, s.Failed, s.Warned = 0, 0, 0
	for _, r := range s.Results {
		switch r.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		default:
			s.Warned++
		}
	}
	switch {
	case s.Failed > 0:
		s.Status = CycleAlert
	case s.Warned > 0:
		s.Status = CycleWarning
	default:
		s.Status = CycleOK
	}
	for _, r := range s.Repairs {
		if !r.Converged {
			s.Status = CycleAlert
			break
		}
		if r.Kind == "persist" && s.Status == CycleOK {
			s.Status = CycleWarning
		}
	}
}

// Result returns the result for the named probe.
func (s RunSummary) Result(probe string) (CheckResult, bool) {
	for _, r := range s.Results {
		if r.Probe == probe {
			return r, true
		}
	}
	return CheckResult{}, false
}

// Clone returns a deep copy so a reconciled summary never aliases the checked one.
func (s RunSummary) Clone() RunSummary {
	out := s
	out.Results = append([]CheckResult(nil), s.Results...)
	out.Repairs = append([]RepairOutcome(nil), s.Repairs...)
	return out
}

// Replace swaps the result for r.Probe in place and recounts. Unknown probes are ignored.
func (s *RunSummary) Replace(r CheckResult) {
	for i := range s.Results {
		if s.Results[i].Probe == r.Probe {
			s.Results[i] = r
			s.Recount()
			return
		}
	}
}

// Unresolved reports whether any Fail remains or any repair failed to converge.
func (s RunSummary) Unresolved() bool {
	return s.Status == CycleAlert
}

// Duration is the wall time spent on the cycle.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
