package compare

import (
	"context"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

// TimestampComparator compares files by size and modification time
type TimestampComparator struct {
	tolerance time.Duration
}

// NewTimestampComparator creates a new timestamp comparator.
// A negative tolerance uses DefaultModTimeTolerance.
func NewTimestampComparator(tolerance time.Duration) *TimestampComparator {
	if tolerance < 0 {
		tolerance = DefaultModTimeTolerance
	}
	return &TimestampComparator{tolerance: tolerance}
}

// Compare reports Same when sizes are equal and modification times differ
// by no more than the tolerance
func (c *TimestampComparator) Compare(ctx context.Context, entry models.FileEntry, dest Target) (*Comparison, error) {
	if entry.Size != dest.Size {
		return &Comparison{Path: entry.RelativePath, Result: Different, Reason: "file sizes differ"}, nil
	}

	diff := entry.ModTime.Sub(dest.ModTime)
	if diff < 0 {
		diff = -diff
	}
	if diff > c.tolerance {
		return &Comparison{Path: entry.RelativePath, Result: Different, Reason: "modification times differ"}, nil
	}

	return &Comparison{Path: entry.RelativePath, Result: Same, Reason: "size and modification time match"}, nil
}

// Name returns the policy name
func (c *TimestampComparator) Name() string {
	return string(PolicySizeModTime)
}
