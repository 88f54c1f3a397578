package storage

import (
	"context"
	"io"
	"time"

	"github.com/sdejongh/syncplan/pkg/compare"
	"github.com/sdejongh/syncplan/pkg/models"
)

// partialSuffix marks an incomplete upload at the destination
const partialSuffix = ".syncplan-partial"

// FileInfo represents metadata about a destination file
type FileInfo struct {
	Path         string
	RelativePath string
	Size         int64
	ModTime      time.Time
	IsDir        bool
	Permissions  uint32
}

// Backend defines the destination side of a transfer.
// Implementations include the local filesystem, SFTP and S3.
type Backend interface {
	// Kind returns the capability tag of the backend
	Kind() models.BackendKind

	// Root returns the destination root address
	Root() string

	// Stat returns destination file metadata; errors wrap fs.ErrNotExist when absent
	Stat(ctx context.Context, relPath string) (*FileInfo, error)

	// Write stores reader at relPath and returns the bytes written.
	// A failed write never leaves a truncated file under relPath.
	// If metadata is provided, attempts to preserve timestamps and permissions.
	Write(ctx context.Context, relPath string, reader io.Reader, size int64, metadata *FileInfo) (int64, error)

	// Close releases any resources held by the backend
	Close() error
}

// Verifier is implemented by backends able to compute a checksum of a stored file
type Verifier interface {
	Checksum(ctx context.Context, relPath string, algo compare.Algorithm) (string, error)
}

// SpaceReporter is implemented by backends that know their free capacity
type SpaceReporter interface {
	// FreeSpace returns available bytes, or -1 when unknown
	FreeSpace(ctx context.Context) (int64, error)
}

// Preparer is implemented by backends needing setup before the first write,
// such as creating the destination root or checking the bucket exists
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Source opens matched entries for reading
type Source interface {
	Open(ctx context.Context, entry models.FileEntry) (io.ReadCloser, error)
}
