package output

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

// FailuresReport lists the files a run did not deliver
type FailuresReport struct {
	PlanID      string          `json:"plan_id"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	State       string          `json:"state"`
	GeneratedAt time.Time       `json:"generated_at"`
	Failed      []JSONErrorData `json:"failed"`
	Pending     []string        `json:"pending,omitempty"`
}

// WriteFailuresReport writes the failed and never-attempted files of a run to
// path. format is "human" or "json". Nothing is written when the run
// delivered every file.
func WriteFailuresReport(path, format string, plan *models.Plan, report *models.SyncReport) error {
	if len(report.Failures) == 0 && len(report.Pending) == 0 {
		return nil
	}

	r := FailuresReport{
		PlanID:      plan.ID,
		Source:      plan.SourceRoot,
		Destination: plan.DestinationRoot,
		State:       string(report.FinalState()),
		GeneratedAt: time.Now(),
		Failed:      make([]JSONErrorData, 0, len(report.Failures)),
	}
	for _, o := range report.Failures {
		r.Failed = append(r.Failed, JSONErrorData{Path: o.Entry.RelativePath, Error: o.Error})
	}
	for _, e := range report.Pending {
		r.Pending = append(r.Pending, e.RelativePath)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create failures report: %w", err)
	}
	defer file.Close()

	switch format {
	case "json":
		enc := json.NewEncoder(file)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write failures report: %w", err)
		}
	case "human", "":
		fmt.Fprintf(file, "# Failures for plan %s (%s)\n", r.PlanID, r.State)
		fmt.Fprintf(file, "# %s -> %s\n", r.Source, r.Destination)
		fmt.Fprintf(file, "# Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
		for _, f := range r.Failed {
			fmt.Fprintf(file, "%s\t%s\n", f.Path, f.Error)
		}
		for _, p := range r.Pending {
			fmt.Fprintf(file, "%s\tnot attempted\n", p)
		}
	default:
		return fmt.Errorf("unknown failures report format %q", format)
	}
	return file.Close()
}
