package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sdejongh/syncplan/pkg/models"
)

// Walk lists the tree under root in lexical order.
// Directories are included with IsDir set. Symlinks report their target's
// metadata, and broken links are returned with Err set like any other entry
// whose metadata cannot be read.
func Walk(ctx context.Context, root string) ([]models.FileEntry, error) {
	local, err := NewLocal(root)
	if err != nil {
		return nil, err
	}
	return local.Walk(ctx)
}

// Walk lists every entry below the backend root
func (l *Local) Walk(ctx context.Context) ([]models.FileEntry, error) {
	var entries []models.FileEntry

	err := filepath.WalkDir(l.rootPath, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p == l.rootPath {
			return err
		}

		relPath, relErr := filepath.Rel(l.rootPath, p)
		if relErr != nil {
			return relErr
		}
		relPath = filepath.ToSlash(relPath)

		if err != nil {
			entries = append(entries, models.FileEntry{RelativePath: relPath, AbsolutePath: p, Err: err})
			return nil
		}

		if strings.HasSuffix(d.Name(), partialSuffix) {
			return nil
		}

		// symlinks are followed; a link to a directory is listed but not descended
		var info fs.FileInfo
		if d.Type()&fs.ModeSymlink != 0 {
			info, err = os.Stat(p)
		} else {
			info, err = d.Info()
		}
		if err != nil {
			entries = append(entries, models.FileEntry{RelativePath: relPath, AbsolutePath: p, Err: err})
			return nil
		}

		entries = append(entries, models.FileEntry{
			RelativePath: relPath,
			AbsolutePath: p,
			Size:         info.Size(),
			ModTime:      info.ModTime(),
			IsDir:        info.IsDir(),
		})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return entries, nil
}

// StatEntry re-reads a single source entry; used to validate cached plans
func (l *Local) StatEntry(relPath string) (models.FileEntry, error) {
	full := l.fullPath(relPath)
	info, err := os.Stat(full)
	if err != nil {
		return models.FileEntry{}, err
	}
	return models.FileEntry{
		RelativePath: relPath,
		AbsolutePath: full,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		IsDir:        info.IsDir(),
	}, nil
}
