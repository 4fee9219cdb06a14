package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrProbeTimeout indicates a probe did not finish within its timeout.
	ErrProbeTimeout = errors.New("engine: probe timed out")

	// ErrProbeInternal indicates a probe panicked.
	ErrProbeInternal = errors.New("engine: probe internal error")

	// ErrRepairApply indicates the corrective action itself failed.
	ErrRepairApply = errors.New("engine: repair apply failed")

	// ErrRepairVerify indicates the action succeeded but the probe still fails.
	ErrRepairVerify = errors.New("engine: repair did not converge")

	// ErrPersistence indicates a best-effort follow-up after a successful
	// repair failed, e.g. saving the rule table for the next boot.
	ErrPersistence = errors.New("engine: persistence failed")

	// ErrUnknownProbe indicates no probe with the given name is registered.
	ErrUnknownProbe = errors.New("engine: unknown probe")

	// ErrDuplicateProbe indicates two probes share a name.
	ErrDuplicateProbe = errors.New("engine: duplicate probe")

	// ErrDuplicateAction indicates more than one action is bound to a probe.
	ErrDuplicateAction = errors.New("engine: duplicate repair action")
)

// RepairError ties a repair failure to its probe. Kind is one of the
// ErrRepair* or ErrPersistence sentinels and is matched by errors.Is.
type RepairError struct {
	Probe string
	Kind  error
	Err   error
}

func (e *RepairError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Probe, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Probe, e.Kind, e.Err)
}

func (e *RepairError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// kindName maps a sentinel to the outcome kind stored in a summary.
func kindName(kind error) string {
	switch {
	case errors.Is(kind, ErrRepairApply):
		return "apply"
	case errors.Is(kind, ErrRepairVerify):
		return "verify"
	case errors.Is(kind, ErrPersistence):
		return "persist"
	}
	return ""
}
