package planner

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
	"github.com/sdejongh/syncplan/pkg/storage"
	"github.com/sdejongh/syncplan/pkg/transfer"
)

func int64p(v int64) *int64 { return &v }

// writeTree creates files under a new temp dir and returns the root
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
	return root
}

func walkPlan(t *testing.T, p *Planner, src, dst string, spec models.FilterSpec) *models.Plan {
	t.Helper()
	entries, err := storage.Walk(context.Background(), src)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	plan, err := p.BuildPlan(src, dst, entries, spec, 1024)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	return plan
}

func TestBuildPlan_BasicFilter(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	entries := []models.FileEntry{
		{RelativePath: "a.pdf", Size: 100, ModTime: t0},
		{RelativePath: "b.jpg", Size: 200, ModTime: t0},
		{RelativePath: "c.pdf", Size: 50, ModTime: t1},
	}
	spec := models.FilterSpec{Patterns: []string{"*.pdf"}, Size: models.SizeRange{Min: int64p(0), Max: int64p(80)}}

	p := &Planner{Now: func() time.Time { return t1 }}
	plan, err := p.BuildPlan("/src", t.TempDir(), entries, spec, 100)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	if plan.Matched.Len() != 1 || plan.Matched.Entries[0].RelativePath != "c.pdf" {
		t.Fatalf("Matched = %+v", plan.Matched.Entries)
	}
	if plan.TotalBytes != 50 {
		t.Errorf("TotalBytes = %d, want 50", plan.TotalBytes)
	}
	if plan.EstimatedSeconds == nil || *plan.EstimatedSeconds != 0.5 {
		t.Errorf("EstimatedSeconds = %v, want 0.5", plan.EstimatedSeconds)
	}
	if plan.State != models.StateEstimated {
		t.Errorf("State = %s, want estimated", plan.State)
	}
	if plan.ID == "" || plan.Backend != models.BackendLocal || !plan.CreatedAt.Equal(t1) {
		t.Errorf("plan = %+v", plan)
	}
}

func TestBuildPlan_IndeterminateEstimate(t *testing.T) {
	entries := []models.FileEntry{{RelativePath: "x", Size: 10}}
	for _, tp := range []float64{0, -5, math.NaN()} {
		plan, err := (&Planner{}).BuildPlan("/src", "s3://bucket/backup", entries, models.FilterSpec{}, tp)
		if err != nil {
			t.Fatalf("BuildPlan() error = %v", err)
		}
		if plan.EstimatedSeconds != nil {
			t.Errorf("throughput %v: EstimatedSeconds = %v, want nil", tp, *plan.EstimatedSeconds)
		}
		if plan.Backend != models.BackendObjectStore {
			t.Errorf("Backend = %s, want object-store", plan.Backend)
		}
	}
}

func TestBuildPlan_ConfigErrors(t *testing.T) {
	src := t.TempDir()
	entries := []models.FileEntry{{RelativePath: "a"}, {RelativePath: "./a"}}

	tests := []struct {
		name    string
		dst     string
		entries []models.FileEntry
		spec    models.FilterSpec
		field   string
	}{
		{"min above max", t.TempDir(), nil, models.FilterSpec{Size: models.SizeRange{Min: int64p(10), Max: int64p(1)}}, "size_range"},
		{"duplicate destination", t.TempDir(), entries, models.FilterSpec{}, "entries"},
		{"escaping path", t.TempDir(), []models.FileEntry{{RelativePath: "../x"}}, models.FilterSpec{}, "entries"},
		{"destination inside source", filepath.Join(src, "backup"), nil, models.FilterSpec{}, "destination"},
		{"bad endpoint", "ftp://host/x", nil, models.FilterSpec{}, "destination"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := (&Planner{}).BuildPlan(src, tt.dst, tt.entries, tt.spec, 1)
			var cfgErr *models.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("BuildPlan() error = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
			if plan != nil {
				t.Error("no plan should be returned on error")
			}
		})
	}
}

func TestConfirmAndExecute_Declined(t *testing.T) {
	src := writeTree(t, map[string]string{"a.txt": "a"})
	dstRoot := filepath.Join(t.TempDir(), "dst")
	p := &Planner{}
	plan := walkPlan(t, p, src, dstRoot, models.FilterSpec{})

	dest, _ := storage.NewLocalDestination(dstRoot)
	calls := 0
	report, err := p.ConfirmAndExecute(context.Background(), plan, func(*models.Plan) bool {
		calls++
		return false
	}, &transfer.Executor{Backend: dest})

	if !errors.Is(err, ErrDeclined) || report != nil {
		t.Fatalf("ConfirmAndExecute() = %v, %v, want ErrDeclined", report, err)
	}
	if calls != 1 {
		t.Errorf("confirmer called %d times, want 1", calls)
	}
	if plan.State != models.StateDraft {
		t.Errorf("State = %s, want draft", plan.State)
	}
	if _, err := os.Stat(dstRoot); !os.IsNotExist(err) {
		t.Error("nothing should be written when the plan is declined")
	}
}

func TestConfirmAndExecute_Completed(t *testing.T) {
	src := writeTree(t, map[string]string{"a.txt": "aaa", "sub/b.txt": "bb", "sub/c.log": "c"})
	dstRoot := t.TempDir()

	var streamed []models.TransferOutcome
	p := &Planner{OnOutcome: func(o models.TransferOutcome) { streamed = append(streamed, o) }}
	plan := walkPlan(t, p, src, dstRoot, models.FilterSpec{Patterns: []string{"*.txt"}})

	dest, _ := storage.NewLocal(dstRoot)
	calls := 0
	report, err := p.ConfirmAndExecute(context.Background(), plan, func(*models.Plan) bool {
		calls++
		return true
	}, &transfer.Executor{Backend: dest, Workers: 2})
	if err != nil {
		t.Fatalf("ConfirmAndExecute() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("confirmer called %d times, want 1", calls)
	}
	if plan.State != models.StateCompleted {
		t.Errorf("State = %s, want completed", plan.State)
	}
	if report.Copied != 2 || len(streamed) != 2 {
		t.Errorf("Copied = %d, streamed = %d, want 2", report.Copied, len(streamed))
	}
	if _, err := os.Stat(filepath.Join(dstRoot, "sub", "c.log")); !os.IsNotExist(err) {
		t.Error("unmatched file was copied")
	}
}

func TestConfirmAndExecute_PartiallyFailed(t *testing.T) {
	src := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})
	dstRoot := writeTree(t, map[string]string{"b.txt/occupied": "x"})

	p := &Planner{}
	plan := walkPlan(t, p, src, dstRoot, models.FilterSpec{})
	dest, _ := storage.NewLocal(dstRoot)

	report, err := p.ConfirmAndExecute(context.Background(), plan, AlwaysConfirm, &transfer.Executor{Backend: dest})
	if err != nil {
		t.Fatalf("ConfirmAndExecute() error = %v", err)
	}
	if report.Copied != 2 || report.Failed != 1 || report.Failures[0].Entry.RelativePath != "b.txt" {
		t.Errorf("report = copied %d failed %d failures %+v", report.Copied, report.Failed, report.Failures)
	}
	if plan.State != models.StatePartiallyFailed {
		t.Errorf("State = %s, want partially_failed", plan.State)
	}
}

func TestConfirmAndExecute_Cancelled(t *testing.T) {
	src := writeTree(t, map[string]string{"a": "1", "b": "2"})
	p := &Planner{}
	plan := walkPlan(t, p, src, t.TempDir(), models.FilterSpec{})
	dest, _ := storage.NewLocal(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.ConfirmAndExecute(ctx, plan, AlwaysConfirm, &transfer.Executor{Backend: dest})
	if err != nil {
		t.Fatalf("ConfirmAndExecute() error = %v", err)
	}
	if plan.State != models.StateCancelled || len(report.Outcomes) != 0 || len(report.Pending) != 2 {
		t.Errorf("State = %s, outcomes = %d, pending = %d", plan.State, len(report.Outcomes), len(report.Pending))
	}
}

func TestConfirmAndExecute_WrongState(t *testing.T) {
	plan := &models.Plan{ID: "p", State: models.StateDraft}
	called := false
	_, err := (&Planner{}).ConfirmAndExecute(context.Background(), plan, func(*models.Plan) bool {
		called = true
		return true
	}, &transfer.Executor{})
	if !errors.Is(err, ErrInvalidTransition) || called {
		t.Errorf("error = %v, confirmer called = %v", err, called)
	}
}

func TestPreflight(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "new", "dest")
	dest, err := storage.NewLocalDestination(root)
	if err != nil {
		t.Fatalf("NewLocalDestination() error = %v", err)
	}

	if err := Preflight(ctx, &models.Plan{TotalBytes: 1}, dest); err != nil {
		t.Fatalf("Preflight() error = %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Error("Preflight() should create the destination root")
	}

	err = Preflight(ctx, &models.Plan{TotalBytes: math.MaxUint64}, dest)
	var destErr *models.DestinationError
	if !errors.As(err, &destErr) || !errors.Is(err, ErrInsufficientSpace) {
		t.Errorf("Preflight() error = %v, want insufficient space", err)
	}
}

func TestSummarize(t *testing.T) {
	plan := &models.Plan{ID: "p1", SourceRoot: "/s", DestinationRoot: "/d"}
	report := &models.SyncReport{}
	report.Add(models.TransferOutcome{Status: models.StatusCopied, Bytes: 10})
	report.Add(models.TransferOutcome{Status: models.StatusFailed, Entry: models.FileEntry{RelativePath: "x"}, Error: "copy x: denied"})

	s := Summarize(plan, report)
	if s.State != models.StatePartiallyFailed || s.Copied != 1 || s.Failed != 1 || s.BytesTransferred != 10 {
		t.Errorf("Summarize() = %+v", s)
	}
	if len(s.Failures) != 1 || s.Failures[0].Path != "x" || s.Failures[0].Error != "copy x: denied" {
		t.Errorf("Failures = %+v", s.Failures)
	}
}

func TestSaveSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "last-run.json")
	s := Summary{PlanID: "p1", State: models.StateCompleted, Copied: 3}
	if err := SaveSummary(path, s); err != nil {
		t.Fatalf("SaveSummary() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"state": "completed"`) || !strings.Contains(string(data), `"copied": 3`) {
		t.Errorf("summary = %s", data)
	}
}

func TestConfirmAndExecute_SymlinkedSource(t *testing.T) {
	content := strings.Repeat("r", 100)
	src := writeTree(t, map[string]string{"real.txt": content})
	if err := os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	dstRoot := t.TempDir()

	p := &Planner{}
	plan := walkPlan(t, p, src, dstRoot, models.FilterSpec{})
	if plan.TotalBytes != 200 {
		t.Errorf("TotalBytes = %d, want 200", plan.TotalBytes)
	}

	// a cached plan with a symlink is still fresh
	a := saveAndLoad(t, plan)
	if _, info, err := p.Replay(context.Background(), a, storage.Walk, DefaultStaleTolerance, 0); err != nil || !info.Fresh {
		t.Errorf("Replay() = %+v, %v; want fresh", info, err)
	}

	dest, _ := storage.NewLocal(dstRoot)
	report, err := p.ConfirmAndExecute(context.Background(), plan, AlwaysConfirm, &transfer.Executor{Backend: dest})
	if err != nil {
		t.Fatalf("ConfirmAndExecute() error = %v", err)
	}
	if plan.State != models.StateCompleted || report.Copied != 2 || report.BytesTransferred != 200 {
		t.Errorf("state %s, copied %d, bytes %d, failures %+v", plan.State, report.Copied, report.BytesTransferred, report.Failures)
	}

	got, err := os.ReadFile(filepath.Join(dstRoot, "link.txt"))
	if err != nil || string(got) != content {
		t.Errorf("link.txt copied as %q, %v; want the target's content", got, err)
	}
}
