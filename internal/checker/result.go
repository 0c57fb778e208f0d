package checker

import (
	"time"

	"raid-health-check/internal/store"
	"raid-health-check/internal/system"
	"raid-health-check/pkg/types"
)

// Status is the outcome of checking one backend
type Status string

const (
	// StatusOK means the backend was collected and evaluated
	StatusOK Status = "ok"
	// StatusAbsent means the tool or any instance to monitor is missing
	// on a backend nobody asked for explicitly
	StatusAbsent Status = "absent"
	// StatusFailed means setup did not complete; nothing was evaluated
	StatusFailed Status = "failed"
)

// BackendResult is the outcome of one backend in a run
type BackendResult struct {
	Backend   string
	Program   system.Program
	Status    Status
	Severity  types.Severity
	Instances []string
	Err       error
	Duration  time.Duration

	// InstanceSeverity holds the folded severity of every instance
	InstanceSeverity map[string]types.Severity
	Findings         []types.Finding
	// Store holds the extracted tables, read-only
	Store *store.Store
}

// Result is one monitoring run
type Result struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	// Severity folds every backend that completed setup. Failed
	// backends do not raise it.
	Severity types.Severity
	Backends []BackendResult
	Findings []types.Finding
}

// ExitCode maps the run to the conventional process exit status
func (r *Result) ExitCode() int {
	return r.Severity.ExitCode()
}

// Failed returns the backends whose setup did not complete
func (r *Result) Failed() []BackendResult {
	var failed []BackendResult
	for _, b := range r.Backends {
		if b.Status == StatusFailed {
			failed = append(failed, b)
		}
	}
	return failed
}

// Checked returns the number of backends evaluated
func (r *Result) Checked() int {
	n := 0
	for _, b := range r.Backends {
		if b.Status == StatusOK {
			n++
		}
	}
	return n
}
