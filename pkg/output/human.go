package output

import (
	"fmt"
	"io"
	"time"

	"github.com/sdejongh/syncplan/pkg/estimate"
	"github.com/sdejongh/syncplan/pkg/models"
)

// HumanFormatter formats output in human-readable format
type HumanFormatter struct {
	writer     io.Writer
	totalFiles int
	done       int

	// PreviewLimit caps the entries listed by Plan; <= 0 uses models.PreviewLimit
	PreviewLimit int
}

// NewHumanFormatter creates a new human-readable formatter
func NewHumanFormatter() *HumanFormatter {
	return &HumanFormatter{}
}

// Plan prints the matched set preview and the estimate
func (f *HumanFormatter) Plan(writer io.Writer, plan *models.Plan) error {
	return writePlan(writer, plan, f.PreviewLimit)
}

// Start initializes the formatter
func (f *HumanFormatter) Start(writer io.Writer, plan *models.Plan, workers int) error {
	f.writer = writer
	f.totalFiles = plan.Matched.Len()
	f.done = 0

	if writer != nil {
		fmt.Fprintf(writer, "Starting sync: %d files, %s total, %d workers\n",
			f.totalFiles, estimate.FormatBytes(plan.TotalBytes), workers)
	}
	return nil
}

// Outcome prints one line per finished file
func (f *HumanFormatter) Outcome(o models.TransferOutcome) error {
	f.done++
	if f.writer == nil {
		return nil
	}

	switch o.Status {
	case models.StatusCopied:
		mark := ""
		if o.Verified {
			mark = ", verified"
		}
		fmt.Fprintf(f.writer, "[%d/%d] ✓ %s (%s%s)\n",
			f.done, f.totalFiles, o.Entry.RelativePath, estimate.FormatBytes(uint64(o.Bytes)), mark)
	case models.StatusSkippedUnchanged:
		fmt.Fprintf(f.writer, "[%d/%d] = %s (unchanged)\n", f.done, f.totalFiles, o.Entry.RelativePath)
	case models.StatusFailed:
		fmt.Fprintf(f.writer, "[%d/%d] ✗ %s: %s\n", f.done, f.totalFiles, o.Entry.RelativePath, o.Error)
	}
	return nil
}

// Complete finalizes output and displays summary
func (f *HumanFormatter) Complete(report *models.SyncReport) error {
	if f.writer == nil {
		f.writer = io.Discard
	}
	writeSummary(f.writer, report)
	return nil
}

// Error reports an error
func (f *HumanFormatter) Error(err error) error {
	if f.writer != nil {
		fmt.Fprintf(f.writer, "Error: %v\n", err)
	}
	return nil
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}

func writePlan(w io.Writer, plan *models.Plan, limit int) error {
	if w == nil {
		return nil
	}

	fmt.Fprintf(w, "Plan %s\n", plan.ID)
	fmt.Fprintf(w, "  Source:      %s\n", plan.SourceRoot)
	fmt.Fprintf(w, "  Destination: %s (%s)\n", plan.DestinationRoot, plan.Backend)
	fmt.Fprintf(w, "\n")

	preview := plan.Matched.Preview(limit)
	for _, e := range preview {
		fmt.Fprintf(w, "  %-10s %s\n", estimate.FormatBytes(uint64(e.Size)), e.RelativePath)
	}
	if rest := plan.Matched.Len() - len(preview); rest > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", rest)
	}
	if plan.Matched.Len() == 0 {
		fmt.Fprintf(w, "  (no files match)\n")
	}

	if n := len(plan.Matched.Unreadable); n > 0 {
		fmt.Fprintf(w, "\n%d entries could not be read:\n", n)
		for _, u := range plan.Matched.Unreadable {
			fmt.Fprintf(w, "  %s\n", u.Error())
		}
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Files:     %d\n", plan.Matched.Len())
	fmt.Fprintf(w, "Total:     %s\n", estimate.FormatBytes(plan.TotalBytes))
	if plan.EstimatedSeconds != nil {
		fmt.Fprintf(w, "Estimate:  %s at %s/s\n",
			estimate.FormatDuration(time.Duration(*plan.EstimatedSeconds*float64(time.Second))),
			estimate.FormatBytes(uint64(plan.Throughput)))
	} else {
		fmt.Fprintf(w, "Estimate:  unknown (no throughput figure)\n")
	}
	return nil
}

func writeSummary(w io.Writer, report *models.SyncReport) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Sync finished in %s\n", report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  Files copied:    %d\n", report.Copied)
	fmt.Fprintf(w, "  Files unchanged: %d\n", report.Skipped)
	fmt.Fprintf(w, "  Files failed:    %d\n", report.Failed)
	if len(report.Pending) > 0 {
		fmt.Fprintf(w, "  Not attempted:   %d\n", len(report.Pending))
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Data:            %s\n", estimate.FormatBytes(uint64(report.BytesTransferred)))
	if report.Elapsed.Seconds() > 0 {
		avgSpeed := float64(report.BytesTransferred) / report.Elapsed.Seconds()
		fmt.Fprintf(w, "  Average speed:   %s/s\n", estimate.FormatBytes(uint64(avgSpeed)))
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Status: %s\n", report.FinalState())

	if report.Aborted != nil {
		fmt.Fprintf(w, "Aborted: %v\n", report.Aborted)
	}

	if len(report.Failures) > 0 {
		fmt.Fprintf(w, "\nErrors:\n")
		for _, o := range report.Failures {
			fmt.Fprintf(w, "  %s: %s\n", o.Entry.RelativePath, o.Error)
		}
	}
}
