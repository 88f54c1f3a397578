package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sdejongh/syncplan/pkg/logging"
	"github.com/sdejongh/syncplan/pkg/models"
	"github.com/sdejongh/syncplan/pkg/storage"
)

// DefaultStaleTolerance is how far a cached mtime may drift before the entry counts as changed
const DefaultStaleTolerance = time.Second

// ErrStaleArtifact is returned when an artifact can no longer be replayed at all
var ErrStaleArtifact = errors.New("plan artifact is stale")

// Walker lists the entries under a source root
type Walker func(ctx context.Context, root string) ([]models.FileEntry, error)

// ReplayInfo describes how a replayed plan was obtained
type ReplayInfo struct {
	// Fresh is true when every cached entry was still valid
	Fresh bool

	// Reason explains why the plan was rebuilt
	Reason string
}

// Replay turns an artifact back into an Estimated plan. Every cached entry is
// re-stated; when one is missing or changed beyond tolerance the source is
// walked again and the stored filter re-matched. throughput <= 0 keeps the
// artifact's figure.
func (p *Planner) Replay(ctx context.Context, a *Artifact, walk Walker, tolerance time.Duration, throughput float64) (*models.Plan, ReplayInfo, error) {
	if tolerance < 0 {
		tolerance = DefaultStaleTolerance
	}
	if throughput <= 0 {
		throughput = a.Throughput
	}

	source, err := storage.NewLocal(a.SourceRoot)
	if err != nil {
		return nil, ReplayInfo{}, fmt.Errorf("%w: source root %s: %v", ErrStaleArtifact, a.SourceRoot, err)
	}

	plan := a.Plan()
	reason, err := revalidate(ctx, source, plan.Matched.Entries, tolerance)
	if err != nil {
		return nil, ReplayInfo{}, err
	}

	log := p.logger().WithFields(logging.Fields{"plan_id": a.PlanID})
	if reason == "" {
		// refresh the estimate for the current throughput
		plan.State = models.StateDraft
		if err := p.estimate(plan, throughput); err != nil {
			return nil, ReplayInfo{}, err
		}
		log.Info(ctx, "Replaying cached plan", logging.Fields{"files": plan.Matched.Len()})
		return plan, ReplayInfo{Fresh: true}, nil
	}

	log.Info(ctx, "Cached plan is stale, re-matching", logging.Fields{"reason": reason})
	entries, err := walk(ctx, a.SourceRoot)
	if err != nil {
		return nil, ReplayInfo{}, fmt.Errorf("failed to walk source: %w", err)
	}
	rebuilt, err := p.BuildPlan(a.SourceRoot, a.DestinationRoot, entries, a.Filter, throughput)
	if err != nil {
		return nil, ReplayInfo{}, err
	}
	return rebuilt, ReplayInfo{Fresh: false, Reason: reason}, nil
}

// revalidate re-stats each entry and returns the first reason it is stale
func revalidate(ctx context.Context, source *storage.Local, entries []models.FileEntry, tolerance time.Duration) (string, error) {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		current, err := source.StatEntry(e.RelativePath)
		switch {
		case err != nil:
			return fmt.Sprintf("%s: %v", e.RelativePath, err), nil
		case current.IsDir:
			return fmt.Sprintf("%s: is now a directory", e.RelativePath), nil
		case current.Size != e.Size:
			return fmt.Sprintf("%s: size changed from %d to %d", e.RelativePath, e.Size, current.Size), nil
		}

		drift := current.ModTime.Sub(e.ModTime)
		if drift < 0 {
			drift = -drift
		}
		if drift > tolerance {
			return fmt.Sprintf("%s: modified since plan", e.RelativePath), nil
		}
	}
	return "", nil
}
