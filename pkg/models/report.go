package models

import (
	"sort"
	"time"
)

// OutcomeStatus is the result classification of a single file
type OutcomeStatus string

const (
	StatusCopied           OutcomeStatus = "copied"
	StatusSkippedUnchanged OutcomeStatus = "skipped_unchanged"
	StatusFailed           OutcomeStatus = "failed"
)

// TransferOutcome is the per-file result emitted by the executor
type TransferOutcome struct {
	// Index is the position of the entry in the plan's matched set
	Index    int           `json:"index"`
	Entry    FileEntry     `json:"entry"`
	Status   OutcomeStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
	Verified bool          `json:"verified"`
	Bytes    int64         `json:"bytes"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// SyncReport aggregates the outcomes of one plan execution
type SyncReport struct {
	PlanID string

	Copied  int
	Skipped int
	Failed  int

	BytesTransferred int64

	StartTime time.Time
	EndTime   time.Time
	Elapsed   time.Duration

	// Outcomes holds every emitted outcome ordered by plan index
	Outcomes []TransferOutcome

	// Failures holds failed outcomes ordered by plan index
	Failures []TransferOutcome

	// Pending lists entries that were never attempted
	Pending []FileEntry

	// Aborted is set when repeated destination errors stopped the run
	Aborted error

	Cancelled bool
}

// Add records an outcome in the counters
func (r *SyncReport) Add(o TransferOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusCopied:
		r.Copied++
		r.BytesTransferred += o.Bytes
	case StatusSkippedUnchanged:
		r.Skipped++
	case StatusFailed:
		r.Failed++
		r.Failures = append(r.Failures, o)
	}
}

// Sort orders outcomes and failures by plan index so reports are reproducible
// regardless of worker interleaving.
func (r *SyncReport) Sort() {
	byIndex := func(s []TransferOutcome) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].Index < s[j].Index })
	}
	byIndex(r.Outcomes)
	byIndex(r.Failures)
}

// FinalState derives the terminal plan state from the report contents
func (r *SyncReport) FinalState() PlanState {
	switch {
	case r.Cancelled:
		return StateCancelled
	case len(r.Failures) > 0 || r.Aborted != nil || len(r.Pending) > 0:
		return StatePartiallyFailed
	default:
		return StateCompleted
	}
}

// Success reports whether every planned file was copied or skipped
func (r *SyncReport) Success() bool {
	return r.FinalState() == StateCompleted
}
