package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

// JSONFormatter writes one JSON event per line for automation and scripting
type JSONFormatter struct {
	writer  io.Writer
	encoder *json.Encoder

	// Now stamps events; defaults to time.Now
	Now func() time.Time
}

// JSONEvent represents a single event in the JSON output stream
type JSONEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
}

// JSONPlanData describes an estimated plan
type JSONPlanData struct {
	PlanID           string             `json:"plan_id"`
	Source           string             `json:"source"`
	Destination      string             `json:"destination"`
	Backend          models.BackendKind `json:"backend"`
	State            models.PlanState   `json:"state"`
	Files            int                `json:"files"`
	TotalBytes       uint64             `json:"total_bytes"`
	EstimatedSeconds *float64           `json:"estimated_seconds"`
	Throughput       float64            `json:"throughput,omitempty"`
	Entries          []models.FileEntry `json:"entries"`
	Unreadable       []JSONErrorData    `json:"unreadable,omitempty"`
}

// JSONStartData represents the data for a start event
type JSONStartData struct {
	PlanID     string `json:"plan_id"`
	TotalFiles int    `json:"total_files"`
	TotalBytes uint64 `json:"total_bytes"`
	Workers    int    `json:"workers"`
}

// JSONReportData represents the final report data
type JSONReportData struct {
	PlanID      string           `json:"plan_id"`
	State       models.PlanState `json:"state"`
	Duration    string           `json:"duration"`
	DurationMs  int64            `json:"duration_ms"`
	Copied      int              `json:"copied"`
	Skipped     int              `json:"skipped"`
	Failed      int              `json:"failed"`
	Pending     []string         `json:"pending,omitempty"`
	Bytes       int64            `json:"bytes_transferred"`
	AvgSpeed    int64            `json:"average_speed_bytes_per_sec,omitempty"`
	Errors      []JSONErrorData  `json:"errors,omitempty"`
	AbortReason string           `json:"aborted,omitempty"`
}

// JSONErrorData represents an error entry
type JSONErrorData struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Plan emits a "plan" event listing every matched entry
func (f *JSONFormatter) Plan(writer io.Writer, plan *models.Plan) error {
	f.setWriter(writer)

	data := JSONPlanData{
		PlanID:           plan.ID,
		Source:           plan.SourceRoot,
		Destination:      plan.DestinationRoot,
		Backend:          plan.Backend,
		State:            plan.State,
		Files:            plan.Matched.Len(),
		TotalBytes:       plan.TotalBytes,
		EstimatedSeconds: plan.EstimatedSeconds,
		Throughput:       plan.Throughput,
		Entries:          plan.Matched.Entries,
	}
	if data.Entries == nil {
		data.Entries = []models.FileEntry{}
	}
	for _, u := range plan.Matched.Unreadable {
		data.Unreadable = append(data.Unreadable, JSONErrorData{Path: u.Path, Error: u.Error()})
	}
	return f.emit("plan", data)
}

// Start initializes the formatter
func (f *JSONFormatter) Start(writer io.Writer, plan *models.Plan, workers int) error {
	f.setWriter(writer)
	return f.emit("start", JSONStartData{
		PlanID:     plan.ID,
		TotalFiles: plan.Matched.Len(),
		TotalBytes: plan.TotalBytes,
		Workers:    workers,
	})
}

// Outcome emits an "outcome" event
func (f *JSONFormatter) Outcome(o models.TransferOutcome) error {
	return f.emit("outcome", o)
}

// Complete emits the final "report" event
func (f *JSONFormatter) Complete(report *models.SyncReport) error {
	data := JSONReportData{
		PlanID:     report.PlanID,
		State:      report.FinalState(),
		Duration:   report.Elapsed.Round(time.Millisecond).String(),
		DurationMs: report.Elapsed.Milliseconds(),
		Copied:     report.Copied,
		Skipped:    report.Skipped,
		Failed:     report.Failed,
		Bytes:      report.BytesTransferred,
	}
	if report.Elapsed.Seconds() > 0 {
		data.AvgSpeed = int64(float64(report.BytesTransferred) / report.Elapsed.Seconds())
	}
	for _, e := range report.Pending {
		data.Pending = append(data.Pending, e.RelativePath)
	}
	for _, o := range report.Failures {
		data.Errors = append(data.Errors, JSONErrorData{Path: o.Entry.RelativePath, Error: o.Error})
	}
	if report.Aborted != nil {
		data.AbortReason = report.Aborted.Error()
	}
	return f.emit("report", data)
}

// Error emits an "error" event
func (f *JSONFormatter) Error(err error) error {
	return f.emit("error", map[string]string{"message": err.Error()})
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}

func (f *JSONFormatter) setWriter(writer io.Writer) {
	if writer == nil {
		writer = os.Stdout
	}
	if writer != f.writer || f.encoder == nil {
		f.writer = writer
		f.encoder = json.NewEncoder(writer)
	}
}

func (f *JSONFormatter) emit(kind string, data any) error {
	if f.encoder == nil {
		f.setWriter(nil)
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return f.encoder.Encode(JSONEvent{Timestamp: now(), Type: kind, Data: data})
}
