package compare

import (
	"context"
	"fmt"

	"github.com/sdejongh/syncplan/pkg/models"
)

// HashComparator compares source and destination content checksums
type HashComparator struct {
	algo Algorithm
}

// NewHashComparator creates a new hash-based comparator
func NewHashComparator(algo Algorithm) *HashComparator {
	if algo == "" {
		algo = SHA256
	}
	return &HashComparator{algo: algo}
}

// Compare checks sizes first and only hashes when they agree
func (c *HashComparator) Compare(ctx context.Context, entry models.FileEntry, dest Target) (*Comparison, error) {
	if entry.Size != dest.Size {
		return &Comparison{Path: entry.RelativePath, Result: Different, Reason: "file sizes differ"}, nil
	}
	if dest.Checksum == nil {
		return &Comparison{Path: entry.RelativePath, Result: Different, Reason: "destination checksum unavailable"}, nil
	}

	destSum, err := dest.Checksum(ctx, c.algo)
	if err != nil {
		return nil, fmt.Errorf("failed to compute destination hash: %w", err)
	}
	srcSum, err := HashFile(ctx, entry.AbsolutePath, c.algo)
	if err != nil {
		return nil, fmt.Errorf("failed to compute source hash: %w", err)
	}

	if srcSum != destSum {
		return &Comparison{Path: entry.RelativePath, Result: Different, Reason: "file hashes differ"}, nil
	}
	return &Comparison{Path: entry.RelativePath, Result: Same, Reason: "file hashes match"}, nil
}

// Name returns the policy name
func (c *HashComparator) Name() string {
	return string(PolicyChecksum)
}
