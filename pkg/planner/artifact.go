package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

// ArtifactVersion is the plan artifact format written by this build
const ArtifactVersion = 1

// ErrUnsupportedVersion is returned when an artifact was written by an incompatible build
var ErrUnsupportedVersion = errors.New("unsupported plan artifact version")

// Artifact is the durable form of a plan, sufficient to replay it without
// re-matching or re-prompting
type Artifact struct {
	// Version for artifact format compatibility
	Version int `json:"version"`

	PlanID          string             `json:"plan_id"`
	SourceRoot      string             `json:"source_root"`
	DestinationRoot string             `json:"destination_root"`
	Backend         models.BackendKind `json:"backend"`
	Filter          models.FilterSpec  `json:"filter"`

	// Entries are the matched files in plan order
	Entries []ArtifactEntry `json:"entries"`

	TotalBytes       uint64   `json:"total_bytes"`
	EstimatedSeconds *float64 `json:"estimated_seconds"`
	Throughput       float64  `json:"throughput"`

	CreatedAt time.Time `json:"created_at"`
}

// ArtifactEntry is the cached snapshot of one matched file
type ArtifactEntry struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// NewArtifact captures plan
func NewArtifact(plan *models.Plan) *Artifact {
	a := &Artifact{
		Version:          ArtifactVersion,
		PlanID:           plan.ID,
		SourceRoot:       plan.SourceRoot,
		DestinationRoot:  plan.DestinationRoot,
		Backend:          plan.Backend,
		Filter:           plan.Filter,
		Entries:          make([]ArtifactEntry, 0, len(plan.Matched.Entries)),
		TotalBytes:       plan.TotalBytes,
		EstimatedSeconds: plan.EstimatedSeconds,
		Throughput:       plan.Throughput,
		CreatedAt:        plan.CreatedAt,
	}
	for _, e := range plan.Matched.Entries {
		a.Entries = append(a.Entries, ArtifactEntry{Path: e.RelativePath, Size: e.Size, ModTime: e.ModTime})
	}
	return a
}

// Plan rebuilds an Estimated plan from the cached snapshot
func (a *Artifact) Plan() *models.Plan {
	plan := &models.Plan{
		ID:               a.PlanID,
		SourceRoot:       a.SourceRoot,
		DestinationRoot:  a.DestinationRoot,
		Backend:          a.Backend,
		Filter:           a.Filter,
		TotalBytes:       a.TotalBytes,
		EstimatedSeconds: a.EstimatedSeconds,
		Throughput:       a.Throughput,
		CreatedAt:        a.CreatedAt,
		State:            models.StateEstimated,
	}
	plan.Matched.Entries = make([]models.FileEntry, 0, len(a.Entries))
	for _, e := range a.Entries {
		plan.Matched.Entries = append(plan.Matched.Entries, models.FileEntry{
			RelativePath: e.Path,
			AbsolutePath: filepath.Join(a.SourceRoot, filepath.FromSlash(e.Path)),
			Size:         e.Size,
			ModTime:      e.ModTime,
		})
	}
	return plan
}

// SaveArtifact writes plan to path atomically
func SaveArtifact(path string, plan *models.Plan) error {
	data, err := json.MarshalIndent(NewArtifact(plan), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write plan artifact: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never see a partial document
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up temp file
		return err
	}
	return nil
}

// LoadArtifact reads an artifact written by SaveArtifact
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse plan artifact: %w", err)
	}

	// Check version compatibility
	if a.Version < 1 || a.Version > ArtifactVersion {
		return nil, fmt.Errorf("%w: %d (supported: %d)", ErrUnsupportedVersion, a.Version, ArtifactVersion)
	}
	if a.SourceRoot == "" || a.DestinationRoot == "" {
		return nil, fmt.Errorf("plan artifact %s: missing endpoints", path)
	}
	return &a, nil
}
