// Package transfer carries out a confirmed plan: it copies every matched entry
// to the destination backend with a bounded worker pool, skips files that are
// already up to date, optionally verifies content, retries transient backend
// errors and isolates per-file failures. Outcomes are streamed as each file
// finishes and aggregated into a SyncReport.
package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sdejongh/syncplan/pkg/compare"
	"github.com/sdejongh/syncplan/pkg/logging"
	"github.com/sdejongh/syncplan/pkg/metrics"
	"github.com/sdejongh/syncplan/pkg/models"
	"github.com/sdejongh/syncplan/pkg/ratelimit"
	"github.com/sdejongh/syncplan/pkg/storage"
)

const (
	// DefaultRetries bounds retries of a transient error on remote backends
	DefaultRetries = 3
	// DefaultRetryDelay is the first backoff interval
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultAbortAfter is the number of consecutive destination errors
	// after which the remaining entries are not attempted
	DefaultAbortAfter = 3
)

// Executor copies the matched entries of a plan to a destination backend.
// The zero value of every optional field selects a sensible default.
type Executor struct {
	// Source opens matched entries; entries are opened by absolute path when nil
	Source storage.Source

	// Backend is the destination, selected once per plan
	Backend storage.Backend

	// Workers is the pool size; 1 copies strictly sequentially
	Workers int

	// Verify compares source and destination checksums after each copy
	Verify   bool
	Checksum compare.Algorithm

	// Skip decides whether an existing destination file is already up to date
	Skip compare.Comparator

	// Retries bounds retries of a transient error; negative disables
	Retries    int
	RetryDelay time.Duration

	// AbortAfter consecutive destination errors stop the run; negative disables
	AbortAfter int

	// Limiter is shared by all workers of an execution
	Limiter *ratelimit.Limiter

	Logger  logging.Logger
	Metrics *metrics.Metrics
}

// Execution is one running plan. Outcomes are delivered on a finite channel
// that is closed when the last worker exits.
type Execution struct {
	outcomes chan models.TransferOutcome
	done     chan struct{}
	report   *models.SyncReport
}

// Outcomes returns the stream of per-file outcomes in completion order.
// The channel is buffered to the plan size so an absent consumer never
// stalls the workers.
func (x *Execution) Outcomes() <-chan models.TransferOutcome {
	return x.outcomes
}

// Done is closed once the report is final
func (x *Execution) Done() <-chan struct{} {
	return x.done
}

// Wait blocks until every worker has exited and returns the report
func (x *Execution) Wait() *models.SyncReport {
	<-x.done
	return x.report
}

// Run executes the plan and returns the final report
func (e *Executor) Run(ctx context.Context, plan *models.Plan) *models.SyncReport {
	return e.Start(ctx, plan).Wait()
}

// Start launches the worker pool for plan and returns immediately.
// Cancelling ctx stops workers from taking new files; copies already in
// flight run to completion.
func (e *Executor) Start(ctx context.Context, plan *models.Plan) *Execution {
	entries := plan.Matched.Entries
	x := &Execution{
		outcomes: make(chan models.TransferOutcome, len(entries)),
		done:     make(chan struct{}),
		report: &models.SyncReport{
			PlanID:    plan.ID,
			StartTime: time.Now(),
		},
	}

	r := &run{
		exec:      e.withDefaults(),
		ctx:       ctx,
		copyCtx:   context.WithoutCancel(ctx),
		entries:   entries,
		execution: x,
		attempted: make([]bool, len(entries)),
		queue:     make(chan *fileTask),
		abort:     make(chan struct{}),
	}
	go r.start()

	return x
}

func (e *Executor) withDefaults() Executor {
	c := *e
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Checksum == "" {
		c.Checksum = compare.SHA256
	}
	if c.Skip == nil {
		c.Skip = compare.NewTimestampComparator(compare.DefaultModTimeTolerance)
	}
	switch {
	case c.Retries == 0:
		c.Retries = DefaultRetries
	case c.Retries < 0:
		c.Retries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.AbortAfter == 0 {
		c.AbortAfter = DefaultAbortAfter
	}
	if c.Source == nil {
		c.Source = fileSource{}
	}
	if c.Logger == nil {
		c.Logger = logging.NewNullLogger()
	}
	return c
}

// run holds the state owned by a single execution
type run struct {
	exec      Executor
	ctx       context.Context
	copyCtx   context.Context
	entries   []models.FileEntry
	execution *Execution

	queue chan *fileTask

	mu          sync.Mutex
	attempted   []bool
	consecutive int

	abort     chan struct{}
	abortOnce sync.Once
}

func (r *run) start() {
	e := &r.exec
	report := r.execution.report

	e.Logger.Info(r.ctx, "Starting plan execution", logging.Fields{
		"plan_id":     report.PlanID,
		"destination": e.Backend.Root(),
		"backend":     e.Backend.Kind(),
		"files":       len(r.entries),
		"workers":     e.Workers,
		"skip":        e.Skip.Name(),
		"verify":      e.Verify,
	})

	workers := e.Workers
	if workers > len(r.entries) {
		workers = len(r.entries)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go r.runWorker(i, &wg)
	}

	r.produce()
	wg.Wait()
	r.finish()
}

// produce feeds tasks in plan order until the plan is exhausted, cancelled or aborted
func (r *run) produce() {
	defer close(r.queue)

	for i, entry := range r.entries {
		select {
		case <-r.ctx.Done():
			return
		case <-r.abort:
			return
		case r.queue <- newFileTask(i, entry):
		}
	}
}

func (r *run) stopped() bool {
	if r.ctx.Err() != nil {
		return true
	}
	select {
	case <-r.abort:
		return true
	default:
		return false
	}
}

// runWorker processes tasks until the queue is closed. Cancellation is only
// observed between files.
func (r *run) runWorker(workerID int, wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range r.queue {
		if r.stopped() {
			continue
		}

		r.mu.Lock()
		r.attempted[task.Index] = true
		r.mu.Unlock()

		task.MarkProcessing(workerID)
		r.exec.processTask(r.copyCtx, task)
		r.record(task)
	}
}

// record adds a finished task to the report and tracks destination failures
func (r *run) record(task *fileTask) {
	e := &r.exec
	o := task.Outcome()

	r.mu.Lock()
	r.execution.report.Add(o)
	if task.Error != nil && isDestinationError(task.Error) {
		r.consecutive++
		if e.AbortAfter > 0 && r.consecutive >= e.AbortAfter {
			r.abortOnce.Do(func() {
				r.execution.report.Aborted = fmt.Errorf("%w (%d): %v", errAborted, r.consecutive, task.Error)
				close(r.abort)
			})
		}
	} else {
		r.consecutive = 0
	}
	r.mu.Unlock()

	e.Metrics.ObserveOutcome(o)
	r.execution.outcomes <- o
}

func (r *run) finish() {
	e := &r.exec
	report := r.execution.report

	for i, ok := range r.attempted {
		if !ok {
			report.Pending = append(report.Pending, r.entries[i])
		}
	}
	report.Cancelled = r.ctx.Err() != nil && len(report.Pending) > 0 && report.Aborted == nil
	report.Sort()
	report.EndTime = time.Now()
	report.Elapsed = report.EndTime.Sub(report.StartTime)

	fields := logging.Fields{
		"plan_id":           report.PlanID,
		"duration":          report.Elapsed.String(),
		"state":             report.FinalState(),
		"files_copied":      report.Copied,
		"files_skipped":     report.Skipped,
		"files_failed":      report.Failed,
		"files_pending":     len(report.Pending),
		"bytes_transferred": report.BytesTransferred,
	}
	if report.Aborted != nil {
		e.Logger.Error(r.ctx, "Plan execution aborted", report.Aborted, fields)
	} else {
		e.Logger.Info(r.ctx, "Plan execution finished", fields)
	}

	close(r.execution.outcomes)
	close(r.execution.done)
}
