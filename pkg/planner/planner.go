// Package planner turns a walked source tree and a filter into an estimated,
// confirmable plan, hands confirmed plans to the transfer executor and
// persists plans as replayable artifacts.
//
// A plan moves through Draft, Estimated, Confirmed and Executing before it
// settles in Completed, Cancelled or PartiallyFailed. Declining the
// confirmation sends it back to Draft.
package planner

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sdejongh/syncplan/pkg/estimate"
	"github.com/sdejongh/syncplan/pkg/filter"
	"github.com/sdejongh/syncplan/pkg/logging"
	"github.com/sdejongh/syncplan/pkg/models"
	"github.com/sdejongh/syncplan/pkg/storage"
	"github.com/sdejongh/syncplan/pkg/transfer"
)

var (
	// ErrDeclined is returned when the confirmer rejects a plan
	ErrDeclined = errors.New("plan declined")

	// ErrInvalidTransition is returned when a plan is used in the wrong state
	ErrInvalidTransition = models.ErrInvalidTransition

	// ErrInsufficientSpace is returned by Preflight when the destination is too small
	ErrInsufficientSpace = errors.New("insufficient free space")
)

// Confirmer decides whether an estimated plan may run. It is called exactly
// once per plan.
type Confirmer func(plan *models.Plan) bool

// AlwaysConfirm accepts every plan
func AlwaysConfirm(*models.Plan) bool { return true }

// Planner builds and runs plans. The zero value is ready to use.
type Planner struct {
	Logger logging.Logger

	// Now returns the current time; time.Now when nil
	Now func() time.Time

	// OnOutcome receives each outcome as the executor streams it
	OnOutcome func(models.TransferOutcome)
}

func (p *Planner) logger() logging.Logger {
	if p.Logger == nil {
		return logging.NewNullLogger()
	}
	return p.Logger
}

func (p *Planner) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// BuildPlan matches entries against spec and estimates the result.
// The returned plan is in the Estimated state. A malformed spec fails with
// *models.ConfigError before anything else happens.
func (p *Planner) BuildPlan(sourceRoot, destinationRoot string, entries []models.FileEntry, spec models.FilterSpec, throughput float64) (*models.Plan, error) {
	f, err := filter.Compile(spec)
	if err != nil {
		return nil, err
	}

	ep, err := storage.Resolve(destinationRoot)
	if err != nil {
		return nil, &models.ConfigError{Field: "destination", Message: err.Error()}
	}
	if ep.Kind == models.BackendLocal && nested(sourceRoot, ep.Path) {
		return nil, &models.ConfigError{Field: "destination", Message: "destination lies inside the source tree"}
	}

	now := p.now()
	plan := &models.Plan{
		ID:              uuid.NewString(),
		SourceRoot:      sourceRoot,
		DestinationRoot: destinationRoot,
		Backend:         ep.Kind,
		Filter:          spec,
		Matched:         f.Match(entries, now),
		Throughput:      throughput,
		CreatedAt:       now,
		State:           models.StateDraft,
	}

	if err := checkDisjoint(plan.Matched.Entries); err != nil {
		return nil, err
	}

	if err := p.estimate(plan, throughput); err != nil {
		return nil, err
	}

	p.logger().Info(context.Background(), "Plan estimated", logging.Fields{
		"plan_id":    plan.ID,
		"source":     plan.SourceRoot,
		"dest":       plan.DestinationRoot,
		"backend":    plan.Backend,
		"files":      plan.Matched.Len(),
		"unreadable": len(plan.Matched.Unreadable),
		"bytes":      plan.TotalBytes,
	})
	return plan, nil
}

func (p *Planner) estimate(plan *models.Plan, throughput float64) error {
	est, err := estimate.Compute(plan.Matched, throughput)
	if err != nil {
		return err
	}
	plan.TotalBytes = est.TotalBytes
	plan.EstimatedSeconds = est.Seconds
	plan.Throughput = throughput
	return plan.Transition(models.StateEstimated)
}

// checkDisjoint ensures no two entries write the same destination path
func checkDisjoint(entries []models.FileEntry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		key := path.Clean(e.RelativePath)
		if key == "." || key == ".." || strings.HasPrefix(key, "../") || path.IsAbs(key) {
			return &models.ConfigError{Field: "entries", Message: "entry escapes the destination root: " + e.RelativePath}
		}
		if _, dup := seen[key]; dup {
			return &models.ConfigError{Field: "entries", Message: "two entries map to destination path " + key}
		}
		seen[key] = struct{}{}
	}
	return nil
}

// nested reports whether dir is root or lies below it
func nested(root, dir string) bool {
	r, err1 := filepath.Abs(root)
	d, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(r, d)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Preflight prepares the destination and checks it can hold the plan
func Preflight(ctx context.Context, plan *models.Plan, backend storage.Backend) error {
	if pr, ok := backend.(storage.Preparer); ok {
		if err := pr.Prepare(ctx); err != nil {
			return err
		}
	}

	sr, ok := backend.(storage.SpaceReporter)
	if !ok {
		return nil
	}
	free, err := sr.FreeSpace(ctx)
	if err != nil || free < 0 {
		// unknown capacity is not an error
		return nil
	}
	if uint64(free) < plan.TotalBytes {
		return &models.DestinationError{
			Endpoint: backend.Root(),
			Err: fmt.Errorf("%w: need %s, %s available", ErrInsufficientSpace,
				estimate.FormatBytes(plan.TotalBytes), estimate.FormatBytes(uint64(free))),
		}
	}
	return nil
}

// ConfirmAndExecute asks confirm once and, when accepted, runs plan through
// exec. Outcomes are forwarded to OnOutcome as they complete. The plan ends
// in the terminal state derived from the report.
func (p *Planner) ConfirmAndExecute(ctx context.Context, plan *models.Plan, confirm Confirmer, exec *transfer.Executor) (*models.SyncReport, error) {
	log := p.logger().WithFields(logging.Fields{"plan_id": plan.ID})

	if plan.State != models.StateEstimated {
		return nil, fmt.Errorf("plan %s: %w: cannot confirm from %s", plan.ID, ErrInvalidTransition, plan.State)
	}

	if !confirm(plan) {
		if err := plan.Transition(models.StateDraft); err != nil {
			return nil, err
		}
		log.Info(ctx, "Plan declined", nil)
		return nil, ErrDeclined
	}

	if err := plan.Transition(models.StateConfirmed); err != nil {
		return nil, err
	}
	log.Info(ctx, "Plan confirmed", nil)

	if err := plan.Transition(models.StateExecuting); err != nil {
		return nil, err
	}

	execution := exec.Start(ctx, plan)
	for o := range execution.Outcomes() {
		if p.OnOutcome != nil {
			p.OnOutcome(o)
		}
	}
	report := execution.Wait()

	if err := plan.Transition(report.FinalState()); err != nil {
		return report, err
	}
	log.Info(ctx, "Plan finished", logging.Fields{
		"state":   plan.State,
		"copied":  report.Copied,
		"skipped": report.Skipped,
		"failed":  report.Failed,
		"pending": len(report.Pending),
	})
	return report, nil
}
