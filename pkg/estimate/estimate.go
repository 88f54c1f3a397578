// Package estimate computes the aggregate size and projected duration of a
// matched file set.
package estimate

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

// DefaultThroughput is the assumed copy speed when nothing was measured (80 MiB/s)
const DefaultThroughput = 80 * 1024 * 1024

// ErrOverflow is returned when the aggregate size does not fit in 64 bits
var ErrOverflow = errors.New("total size overflows 64 bits")

// Estimate is the result of sizing a matched set
type Estimate struct {
	TotalBytes uint64

	// Seconds is nil when throughput is zero or unknown
	Seconds *float64

	Throughput float64
}

// Compute sums entry sizes and projects duration at throughput bytes/sec
func Compute(matched models.MatchResult, throughput float64) (Estimate, error) {
	var total uint64
	for _, e := range matched.Entries {
		if e.Size < 0 {
			return Estimate{}, fmt.Errorf("%s: negative size %d", e.RelativePath, e.Size)
		}
		var carry uint64
		total, carry = bits.Add64(total, uint64(e.Size), 0)
		if carry != 0 {
			return Estimate{}, ErrOverflow
		}
	}

	est := Estimate{TotalBytes: total, Throughput: throughput}
	if throughput > 0 && !math.IsInf(throughput, 0) && !math.IsNaN(throughput) {
		s := float64(total) / throughput
		est.Seconds = &s
	}
	return est, nil
}

// Determinate reports whether a duration could be projected
func (e Estimate) Determinate() bool {
	return e.Seconds != nil
}

// Duration returns the projected duration, or 0 when indeterminate
func (e Estimate) Duration() time.Duration {
	if e.Seconds == nil {
		return 0
	}
	return time.Duration(*e.Seconds * float64(time.Second))
}

// ETA renders the projected duration, "unknown" when indeterminate
func (e Estimate) ETA() string {
	if e.Seconds == nil {
		return "unknown"
	}
	return FormatDuration(e.Duration())
}
