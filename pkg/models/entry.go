package models

import (
	"time"
)

// PreviewLimit is the number of matched entries shown when previewing a plan
const PreviewLimit = 50

// FileEntry represents a file discovered by walking a source root.
// It is an immutable snapshot taken at plan time.
type FileEntry struct {
	// RelativePath is the slash-separated path relative to the source root
	RelativePath string `json:"path"`

	// AbsolutePath is the full path on the source filesystem
	AbsolutePath string `json:"-"`

	// Size in bytes
	Size int64 `json:"size"`

	// ModTime is the last modification time
	ModTime time.Time `json:"mtime"`

	// IsDir indicates if this is a directory
	IsDir bool `json:"is_dir,omitempty"`

	// Err is set by the walker when the entry's metadata could not be read
	Err error `json:"-"`
}

// MatchResult is the ordered output of the filter engine
type MatchResult struct {
	// Entries are the matched files in source walk order
	Entries []FileEntry

	// Unreadable lists entries whose metadata could not be read.
	// They are never part of Entries.
	Unreadable []ScanError
}

// Len returns the number of matched entries
func (m MatchResult) Len() int {
	return len(m.Entries)
}

// Preview returns at most limit entries for display.
// A limit <= 0 uses PreviewLimit.
func (m MatchResult) Preview(limit int) []FileEntry {
	if limit <= 0 {
		limit = PreviewLimit
	}
	if len(m.Entries) <= limit {
		return m.Entries
	}
	return m.Entries[:limit]
}
