package estimate

import (
	"context"
	"io"
	"math/rand"
	"time"
)

// DefaultProbeSize is the payload written by a calibration probe (4 MiB)
const DefaultProbeSize = 4 << 20

// Prober writes and discards a throwaway payload at the destination
type Prober interface {
	Probe(ctx context.Context, r io.Reader, size int64) error
}

// Calibrate measures throughput with a short probe copy.
// It returns 0 (unknown) when the probe fails or is too fast to time.
func Calibrate(ctx context.Context, p Prober, size int64) float64 {
	if p == nil || size <= 0 {
		return 0
	}

	payload := io.LimitReader(rand.New(rand.NewSource(time.Now().UnixNano())), size)

	start := time.Now()
	if err := p.Probe(ctx, payload, size); err != nil {
		return 0
	}
	elapsed := time.Since(start)
	if elapsed <= 0 {
		return 0
	}
	return float64(size) / elapsed.Seconds()
}
