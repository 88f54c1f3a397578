// Package compare decides whether a destination file already matches its
// source so the copy can be skipped.
package compare

import (
	"context"
	"fmt"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

// Result represents the outcome of comparing two files
type Result string

const (
	// Same indicates files are identical
	Same Result = "same"
	// Different indicates files differ
	Different Result = "different"
)

// Policy selects how unchanged files are detected
type Policy string

const (
	// PolicyNever always copies
	PolicyNever Policy = "never"
	// PolicySizeModTime skips when size and modification time agree
	PolicySizeModTime Policy = "size-modtime"
	// PolicyChecksum skips when content checksums agree
	PolicyChecksum Policy = "checksum"
)

// DefaultModTimeTolerance absorbs filesystems with coarse timestamps
const DefaultModTimeTolerance = time.Second

// Target describes the existing destination file
type Target struct {
	Size    int64
	ModTime time.Time

	// Checksum lazily fetches the destination digest; may be nil when the
	// backend cannot provide one
	Checksum func(ctx context.Context, algo Algorithm) (string, error)
}

// Comparison holds the result of comparing two files
type Comparison struct {
	Path   string
	Result Result
	Reason string
}

// Comparator defines the interface for file comparison algorithms
type Comparator interface {
	// Compare compares a source entry against the existing destination file
	Compare(ctx context.Context, entry models.FileEntry, dest Target) (*Comparison, error)

	// Name returns the name of the comparison method
	Name() string
}

// New returns the comparator for a policy
func New(policy Policy, algo Algorithm, tolerance time.Duration) (Comparator, error) {
	switch policy {
	case PolicyNever:
		return NeverComparator{}, nil
	case "", PolicySizeModTime:
		return NewTimestampComparator(tolerance), nil
	case PolicyChecksum:
		return NewHashComparator(algo), nil
	default:
		return nil, fmt.Errorf("unknown skip policy %q", policy)
	}
}

// NeverComparator reports every file as different
type NeverComparator struct{}

// Compare always returns Different
func (NeverComparator) Compare(ctx context.Context, entry models.FileEntry, dest Target) (*Comparison, error) {
	return &Comparison{Path: entry.RelativePath, Result: Different, Reason: "skip disabled"}, nil
}

// Name returns the policy name
func (NeverComparator) Name() string {
	return string(PolicyNever)
}
