package transfer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sdejongh/syncplan/pkg/compare"
	"github.com/sdejongh/syncplan/pkg/logging"
	"github.com/sdejongh/syncplan/pkg/models"
	"github.com/sdejongh/syncplan/pkg/ratelimit"
	"github.com/sdejongh/syncplan/pkg/storage"
)

// fileSource opens entries directly from their absolute path
type fileSource struct{}

func (fileSource) Open(ctx context.Context, entry models.FileEntry) (io.ReadCloser, error) {
	return os.Open(entry.AbsolutePath)
}

// processTask handles a single file: destination check, skip policy, copy,
// optional verification. The result is stored on the task; errors never
// escape.
func (e *Executor) processTask(ctx context.Context, task *fileTask) {
	entry := task.Entry
	log := e.Logger.WithFields(logging.Fields{"path": entry.RelativePath})
	log.Debug(ctx, "Processing file", logging.Fields{"size": entry.Size, "worker": task.WorkerID})

	// Step 1: existing destination file
	var target *storage.FileInfo
	err := e.retry(ctx, task, "stat", func() error {
		info, err := e.Backend.Stat(ctx, entry.RelativePath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		target = info
		return err
	})
	if err != nil {
		e.fail(ctx, task, "stat", err)
		return
	}

	// Step 2: skip policy
	if target != nil && !target.IsDir {
		cmp, err := e.Skip.Compare(ctx, entry, e.compareTarget(entry.RelativePath, target))
		if err != nil {
			e.fail(ctx, task, "compare", err)
			return
		}
		if cmp.Result == compare.Same {
			task.MarkCompleted(models.StatusSkippedUnchanged, 0)
			log.Debug(ctx, "File unchanged, skipping", logging.Fields{"reason": cmp.Reason})
			return
		}
	}

	// Step 3: copy, then verify
	task.Attempts = 0
	var written int64
	err = e.retry(ctx, task, "copy", func() error {
		task.Attempts++
		var err error
		written, task.Verified, err = e.copyOnce(ctx, entry)
		return err
	})
	if err != nil {
		op := "copy"
		if errors.Is(err, ErrChecksumMismatch) {
			op = "verify"
		}
		e.fail(ctx, task, op, err)
		return
	}

	task.MarkCompleted(models.StatusCopied, written)
	log.Info(ctx, "File copied", logging.Fields{
		"bytes":    written,
		"verified": task.Verified,
		"attempts": task.Attempts,
	})
}

func (e *Executor) fail(ctx context.Context, task *fileTask, op string, err error) {
	task.MarkError(&models.TransferError{Path: task.Entry.RelativePath, Op: op, Err: err})
	e.Logger.Error(ctx, "File transfer failed", err, logging.Fields{
		"path":     task.Entry.RelativePath,
		"op":       op,
		"attempts": task.Attempts,
	})
}

func (e *Executor) compareTarget(rel string, info *storage.FileInfo) compare.Target {
	t := compare.Target{Size: info.Size, ModTime: info.ModTime}
	if v, ok := e.Backend.(storage.Verifier); ok {
		t.Checksum = func(ctx context.Context, algo compare.Algorithm) (string, error) {
			return v.Checksum(ctx, rel, algo)
		}
	}
	return t
}

// copyOnce streams one entry to the backend. When verification is enabled the
// source digest is computed while streaming and compared to the stored file.
func (e *Executor) copyOnce(ctx context.Context, entry models.FileEntry) (int64, bool, error) {
	rc, err := e.Source.Open(ctx, entry)
	if err != nil {
		return 0, false, err
	}
	src := ratelimit.NewReadCloser(ctx, rc, e.Limiter)
	defer src.Close()

	meta := &storage.FileInfo{
		RelativePath: entry.RelativePath,
		Size:         entry.Size,
		ModTime:      entry.ModTime,
	}
	if f, ok := rc.(interface{ Stat() (fs.FileInfo, error) }); ok {
		if info, err := f.Stat(); err == nil {
			meta.Permissions = uint32(info.Mode().Perm())
		}
	}

	var reader io.Reader = src
	var h hash.Hash
	if e.Verify {
		h = e.Checksum.New()
		reader = io.TeeReader(reader, h)
	}

	written, err := e.Backend.Write(ctx, entry.RelativePath, reader, entry.Size, meta)
	if err != nil {
		return written, false, err
	}
	if h == nil {
		return written, false, nil
	}

	verified, err := e.verify(ctx, entry.RelativePath, hex.EncodeToString(h.Sum(nil)))
	return written, verified, err
}

// verify compares the destination digest with the streamed source digest.
// Backends without checksum support leave the file unverified.
func (e *Executor) verify(ctx context.Context, relPath, want string) (bool, error) {
	v, ok := e.Backend.(storage.Verifier)
	if !ok {
		e.Logger.Warn(ctx, "Destination cannot compute checksums, skipping verification", logging.Fields{"path": relPath})
		return false, nil
	}

	got, err := v.Checksum(ctx, relPath, e.Checksum)
	if err != nil {
		return false, fmt.Errorf("failed to checksum destination: %w", err)
	}
	if got != want {
		return false, fmt.Errorf("%w: source %s, destination %s", ErrChecksumMismatch, want, got)
	}
	return true, nil
}

// retry runs op, retrying transient errors with exponential backoff.
// Local copies are never retried.
func (e *Executor) retry(ctx context.Context, task *fileTask, name string, op func() error) error {
	retries := e.Retries
	if e.Backend.Kind() == models.BackendLocal {
		retries = 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.RetryDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		e.Metrics.IncRetry()
		e.Logger.Warn(ctx, "Transient error, retrying", logging.Fields{
			"path":  task.Entry.RelativePath,
			"op":    name,
			"error": err.Error(),
			"wait":  wait.String(),
		})
	})
}
