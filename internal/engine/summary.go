package engine

import (
	"time"

	"github.com/openmined/docsync/internal/executor"
	"github.com/openmined/docsync/internal/planner"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitConfig    = 2
	ExitCancelled = 130
)

// Summary is the outcome of one run.
type Summary struct {
	Plan    *planner.SyncPlan // nil when the run stopped before planning
	Results []executor.TransferResult

	Uploaded  int
	Deleted   int
	Skipped   int
	Failed    int
	Cancelled int

	DryRun      bool
	Declined    bool // the confirmation was answered with no
	Interrupted bool // the run was cancelled
	Duration    time.Duration
}

func (s *Summary) tally(results []executor.TransferResult) {
	s.Results = results
	for i := range results {
		r := &results[i]
		switch {
		case r.Success && r.Action.Kind == planner.ActionUpload:
			s.Uploaded++
		case r.Success && r.Action.Kind == planner.ActionDelete:
			s.Deleted++
		case r.Cancelled:
			s.Cancelled++
		default:
			s.Failed++
		}
	}
}

// Failures returns every failed result. Cancelled actions are not failures.
func (s *Summary) Failures() []executor.TransferResult {
	var failed []executor.TransferResult
	for i := range s.Results {
		if s.Results[i].Failed() {
			failed = append(failed, s.Results[i])
		}
	}
	return failed
}

// Executed reports whether any transfer was attempted.
func (s *Summary) Executed() bool {
	return len(s.Results) > 0
}

// ExitCode maps the outcome to the process exit code. Failures win over
// cancellation.
func (s *Summary) ExitCode() int {
	switch {
	case s.Failed > 0:
		return ExitFailure
	case s.Declined, s.Interrupted, s.Cancelled > 0:
		return ExitCancelled
	default:
		return ExitOK
	}
}
