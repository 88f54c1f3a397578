package transfer

import (
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

// TaskStatus represents the status of a file task in the pool
type TaskStatus string

const (
	// TaskPending indicates the task is waiting to be processed
	TaskPending TaskStatus = "pending"
	// TaskProcessing indicates the task is currently being processed by a worker
	TaskProcessing TaskStatus = "processing"
	// TaskCompleted indicates the task completed successfully
	TaskCompleted TaskStatus = "completed"
	// TaskError indicates the task failed with an error
	TaskError TaskStatus = "error"
)

// fileTask tracks one matched entry while a worker owns it
type fileTask struct {
	// Index is the position in the plan's matched set
	Index int

	Entry models.FileEntry

	Status TaskStatus
	Result models.OutcomeStatus
	Error  error

	Verified         bool
	BytesTransferred int64
	Attempts         int

	started  time.Time
	WorkerID int
}

func newFileTask(index int, entry models.FileEntry) *fileTask {
	return &fileTask{
		Index:  index,
		Entry:  entry,
		Status: TaskPending,
	}
}

// MarkProcessing marks the task as being processed by a worker
func (t *fileTask) MarkProcessing(workerID int) {
	t.Status = TaskProcessing
	t.WorkerID = workerID
	t.started = time.Now()
}

// MarkCompleted marks the task as successfully completed
func (t *fileTask) MarkCompleted(result models.OutcomeStatus, bytesTransferred int64) {
	t.Status = TaskCompleted
	t.Result = result
	t.BytesTransferred = bytesTransferred
}

// MarkError marks the task as failed with an error
func (t *fileTask) MarkError(err error) {
	t.Status = TaskError
	t.Result = models.StatusFailed
	t.Error = err
}

// Outcome converts the finished task to its reported form
func (t *fileTask) Outcome() models.TransferOutcome {
	o := models.TransferOutcome{
		Index:    t.Index,
		Entry:    t.Entry,
		Status:   t.Result,
		Verified: t.Verified,
		Bytes:    t.BytesTransferred,
		Attempts: t.Attempts,
		Duration: time.Since(t.started),
	}
	if t.Error != nil {
		o.Error = t.Error.Error()
	}
	return o
}
