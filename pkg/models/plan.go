package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a plan is moved out of order
var ErrInvalidTransition = errors.New("invalid plan state transition")

// BackendKind tags the destination capability set used for a plan
type BackendKind string

const (
	// BackendLocal copies onto a mounted filesystem
	BackendLocal BackendKind = "local"
	// BackendRemote copies to a remote host over SFTP
	BackendRemote BackendKind = "remote"
	// BackendObjectStore uploads to an S3-compatible bucket
	BackendObjectStore BackendKind = "object-store"
)

// PlanState is the lifecycle state of a plan
type PlanState string

const (
	StateDraft           PlanState = "draft"
	StateEstimated       PlanState = "estimated"
	StateConfirmed       PlanState = "confirmed"
	StateExecuting       PlanState = "executing"
	StateCompleted       PlanState = "completed"
	StateCancelled       PlanState = "cancelled"
	StatePartiallyFailed PlanState = "partially_failed"
)

var transitions = map[PlanState][]PlanState{
	StateDraft:     {StateEstimated},
	StateEstimated: {StateConfirmed, StateDraft},
	StateConfirmed: {StateExecuting},
	StateExecuting: {StateCompleted, StateCancelled, StatePartiallyFailed},
}

// CanTransition reports whether to is reachable from s in one step
func (s PlanState) CanTransition(to PlanState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s PlanState) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StatePartiallyFailed
}

// ExitCode returns the process exit code for a finished plan
func (s PlanState) ExitCode() int {
	switch s {
	case StateCompleted:
		return 0
	case StatePartiallyFailed:
		return 1
	case StateCancelled:
		return 3
	default:
		return 2
	}
}

// Plan is the estimated, confirmable unit of work produced before execution
type Plan struct {
	ID              string
	SourceRoot      string
	DestinationRoot string
	Backend         BackendKind
	Filter          FilterSpec
	Matched         MatchResult

	// TotalBytes is the exact sum of matched entry sizes
	TotalBytes uint64

	// EstimatedSeconds is nil when throughput is unknown
	EstimatedSeconds *float64

	// Throughput is the bytes/sec figure the estimate was based on
	Throughput float64

	CreatedAt time.Time
	State     PlanState
}

// Transition moves the plan to the given state or reports why it cannot
func (p *Plan) Transition(to PlanState) error {
	if !p.State.CanTransition(to) {
		return fmt.Errorf("plan %s: %w %s -> %s", p.ID, ErrInvalidTransition, p.State, to)
	}
	p.State = to
	return nil
}
