package planner

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

// Summary is the serializable record of a finished run that a state store may persist
type Summary struct {
	PlanID           string           `json:"plan_id"`
	SourceRoot       string           `json:"source_root"`
	DestinationRoot  string           `json:"destination_root"`
	State            models.PlanState `json:"state"`
	Copied           int              `json:"copied"`
	Skipped          int              `json:"skipped"`
	Failed           int              `json:"failed"`
	Pending          int              `json:"pending"`
	BytesTransferred int64            `json:"bytes_transferred"`
	ElapsedSeconds   float64          `json:"elapsed_seconds"`
	Failures         []FailureSummary `json:"failures,omitempty"`
	Aborted          string           `json:"aborted,omitempty"`
	FinishedAt       time.Time        `json:"finished_at"`
}

// FailureSummary carries enough detail to retry a file by hand
type FailureSummary struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Summarize combines a plan and its report
func Summarize(plan *models.Plan, report *models.SyncReport) Summary {
	s := Summary{
		PlanID:           plan.ID,
		SourceRoot:       plan.SourceRoot,
		DestinationRoot:  plan.DestinationRoot,
		State:            report.FinalState(),
		Copied:           report.Copied,
		Skipped:          report.Skipped,
		Failed:           report.Failed,
		Pending:          len(report.Pending),
		BytesTransferred: report.BytesTransferred,
		ElapsedSeconds:   report.Elapsed.Seconds(),
		FinishedAt:       report.EndTime,
	}
	for _, f := range report.Failures {
		s.Failures = append(s.Failures, FailureSummary{Path: f.Entry.RelativePath, Error: f.Error})
	}
	if report.Aborted != nil {
		s.Aborted = report.Aborted.Error()
	}
	return s
}

// SaveSummary writes s as indented JSON to path atomically
func SaveSummary(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}
