package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/sdejongh/syncplan/pkg/compare"
	"github.com/sdejongh/syncplan/pkg/models"
)

// Local is a filesystem-based storage backend.
// It serves both as the walked source and as a local destination.
type Local struct {
	rootPath string
}

// NewLocal creates a new local filesystem backend over an existing directory
func NewLocal(rootPath string) (*Local, error) {
	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	return &Local{rootPath: absPath}, nil
}

// NewLocalDestination creates a local backend whose root may not exist yet.
// Prepare creates it.
func NewLocalDestination(rootPath string) (*Local, error) {
	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err == nil && !info.IsDir() {
		return nil, &models.DestinationError{Endpoint: absPath, Err: errors.New("path is not a directory")}
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &models.DestinationError{Endpoint: absPath, Err: err}
	}

	return &Local{rootPath: absPath}, nil
}

// Kind returns BackendLocal
func (l *Local) Kind() models.BackendKind {
	return models.BackendLocal
}

// Root returns the absolute root path
func (l *Local) Root() string {
	return l.rootPath
}

// Prepare creates the destination root if missing
func (l *Local) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(l.rootPath, 0755); err != nil {
		return &models.DestinationError{Endpoint: l.rootPath, Err: err}
	}
	return nil
}

// Open opens a source entry for reading
func (l *Local) Open(ctx context.Context, entry models.FileEntry) (io.ReadCloser, error) {
	path := entry.AbsolutePath
	if path == "" {
		path = l.fullPath(entry.RelativePath)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Stat returns file metadata
func (l *Local) Stat(ctx context.Context, relPath string) (*FileInfo, error) {
	fullPath := l.fullPath(relPath)

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &FileInfo{
		Path:         fullPath,
		RelativePath: relPath,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		IsDir:        info.IsDir(),
		Permissions:  uint32(info.Mode().Perm()),
	}, nil
}

// Write copies reader into a temporary file next to the target and renames
// it into place once complete. The temporary file is removed on failure.
func (l *Local) Write(ctx context.Context, relPath string, reader io.Reader, size int64, metadata *FileInfo) (int64, error) {
	fullPath := l.fullPath(relPath)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*"+partialSuffix)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := l.writeTemp(tmp, reader, size, metadata)
	if err != nil {
		os.Remove(tmpPath)
		return written, err
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("failed to move file into place: %w", err)
	}

	return written, nil
}

func (l *Local) writeTemp(tmp *os.File, reader io.Reader, size int64, metadata *FileInfo) (int64, error) {
	written, err := io.Copy(tmp, reader)
	if err != nil {
		tmp.Close()
		return written, fmt.Errorf("failed to write file: %w", err)
	}
	if size >= 0 && written != size {
		tmp.Close()
		return written, fmt.Errorf("incomplete write: expected %d bytes, wrote %d", size, written)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return written, fmt.Errorf("failed to flush file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("failed to close file: %w", err)
	}

	if metadata != nil {
		if metadata.Permissions != 0 {
			if err := os.Chmod(tmp.Name(), os.FileMode(metadata.Permissions)); err != nil {
				return written, fmt.Errorf("failed to set permissions: %w", err)
			}
		}
		if !metadata.ModTime.IsZero() {
			if err := os.Chtimes(tmp.Name(), metadata.ModTime, metadata.ModTime); err != nil {
				return written, fmt.Errorf("failed to set modification time: %w", err)
			}
		}
	}
	return written, nil
}

// Checksum hashes a stored file
func (l *Local) Checksum(ctx context.Context, relPath string, algo compare.Algorithm) (string, error) {
	return compare.HashFile(ctx, l.fullPath(relPath), algo)
}

// FreeSpace reports available bytes on the filesystem holding the root.
// When the root does not exist yet its nearest existing parent is used.
func (l *Local) FreeSpace(ctx context.Context) (int64, error) {
	path, ok := existingDir(l.rootPath)
	if !ok {
		return -1, nil
	}

	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return -1, fmt.Errorf("failed to read disk usage: %w", err)
	}
	return int64(usage.Free), nil
}

// Probe writes size bytes to a throwaway file and removes it. The file goes
// under the root, or its nearest existing parent so the root is not created
// before a plan is confirmed.
func (l *Local) Probe(ctx context.Context, r io.Reader, size int64) error {
	dir, ok := existingDir(l.rootPath)
	if !ok {
		return &models.DestinationError{Endpoint: l.rootPath, Err: fs.ErrNotExist}
	}
	tmp, err := os.CreateTemp(dir, ".syncplan-probe-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.CopyN(tmp, r, size); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	return tmp.Close()
}

// Close releases resources (no-op for local filesystem)
func (l *Local) Close() error {
	return nil
}

// existingDir returns p or its nearest existing ancestor directory
func existingDir(p string) (string, bool) {
	for {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p, true
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", false
		}
		p = parent
	}
}

func (l *Local) fullPath(relPath string) string {
	return filepath.Join(l.rootPath, filepath.FromSlash(relPath))
}
