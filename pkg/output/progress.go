package output

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/sdejongh/syncplan/pkg/models"
)

const progressTemplate = `{{string . "prefix"}} {{counters . }} {{bar . "[" "=" ">" " " "]"}} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`

// getUpdateInterval returns the progress update interval based on OS
// Windows terminals have higher latency with ANSI sequences, so we use a longer interval
func getUpdateInterval() time.Duration {
	if runtime.GOOS == "windows" {
		return 300 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// ProgressFormatter draws a byte-based progress bar while the plan executes.
// Files that are skipped or fail still advance the bar by their size so it
// reaches 100% when every entry has an outcome.
type ProgressFormatter struct {
	mu         sync.Mutex
	writer     io.Writer
	bar        *pb.ProgressBar
	totalFiles int
	done       int
	failed     int

	// PreviewLimit caps the entries listed by Plan; <= 0 uses models.PreviewLimit
	PreviewLimit int
}

// NewProgressFormatter creates a new progress bar formatter
func NewProgressFormatter() *ProgressFormatter {
	return &ProgressFormatter{}
}

// Plan prints the same preview as the human formatter
func (f *ProgressFormatter) Plan(writer io.Writer, plan *models.Plan) error {
	return writePlan(writer, plan, f.PreviewLimit)
}

// Start initializes the progress bar
func (f *ProgressFormatter) Start(writer io.Writer, plan *models.Plan, workers int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if writer == nil {
		writer = os.Stdout
	}
	f.writer = writer
	f.totalFiles = plan.Matched.Len()
	f.done = 0
	f.failed = 0

	fmt.Fprintf(writer, "Syncing %d files with %d workers\n", f.totalFiles, workers)

	f.bar = pb.New64(int64(plan.TotalBytes)).
		SetTemplateString(progressTemplate).
		SetWriter(writer).
		SetRefreshRate(getUpdateInterval()).
		Set(pb.Bytes, true).
		Set(pb.Terminal, IsTerminal(writer)).
		Set("prefix", f.prefix())
	f.bar.Start()
	return nil
}

// Outcome advances the bar
func (f *ProgressFormatter) Outcome(o models.TransferOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.done++
	if o.Status == models.StatusFailed {
		f.failed++
	}
	if f.bar == nil {
		return nil
	}

	advance := o.Entry.Size
	if o.Status == models.StatusCopied {
		advance = o.Bytes
	}
	f.bar.Add64(advance)
	f.bar.Set("prefix", f.prefix())
	return nil
}

// Complete stops the bar and prints the summary
func (f *ProgressFormatter) Complete(report *models.SyncReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.bar != nil {
		f.bar.Finish()
		f.bar = nil
	}
	w := f.writer
	if w == nil {
		w = os.Stdout
	}
	writeSummary(w, report)
	return nil
}

// Error reports an error below the bar
func (f *ProgressFormatter) Error(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := f.writer
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "\nError: %v\n", err)
	return nil
}

// Name returns the formatter name
func (f *ProgressFormatter) Name() string {
	return "progress"
}

func (f *ProgressFormatter) prefix() string {
	if f.failed > 0 {
		return fmt.Sprintf("%d/%d files (%d failed)", f.done, f.totalFiles, f.failed)
	}
	return fmt.Sprintf("%d/%d files", f.done, f.totalFiles)
}
