package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

var sizeUnits = map[string]float64{
	"":   1,
	"B":  1,
	"K":  1 << 10,
	"KB": 1 << 10,
	"M":  1 << 20,
	"MB": 1 << 20,
	"G":  1 << 30,
	"GB": 1 << 30,
	"T":  1 << 40,
	"TB": 1 << 40,
}

// ParseBytes parses a human size such as "512", "10K", "1.5G" or "2TB".
// Units are 1024-based. "unlimited" and the empty string return 0.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unlimited") {
		return 0, nil
	}

	upper := strings.ToUpper(s)
	i := len(upper)
	for i > 0 && (upper[i-1] < '0' || upper[i-1] > '9') && upper[i-1] != '.' {
		i--
	}
	number, unit := upper[:i], strings.TrimSpace(upper[i:])

	mult, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit %q", s, unit)
	}
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", s)
	}
	bytes := value * mult
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}
	return int64(bytes), nil
}

// ParseSizeBound parses a size range bound; unlimited yields nil
func ParseSizeBound(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unlimited") {
		return nil, nil
	}
	v, err := ParseBytes(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseTimeWindow parses "unlimited", "1h", "today" or an explicit
// "START..END" range where each side is RFC 3339 or YYYY-MM-DD and may be empty.
// Dates are interpreted in loc.
func ParseTimeWindow(s string, loc *time.Location) (models.TimeWindow, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "unlimited", "none":
		return models.TimeWindow{Kind: models.WindowNone}, nil
	case "1h", "last_hour", "last-hour":
		return models.TimeWindow{Kind: models.WindowLastHour}, nil
	case "today":
		return models.TimeWindow{Kind: models.WindowToday}, nil
	}

	from, to, ok := strings.Cut(s, "..")
	if !ok {
		return models.TimeWindow{}, &models.ConfigError{Field: "time_window", Message: "unrecognised window " + s}
	}
	w := models.TimeWindow{Kind: models.WindowRange}
	var err error
	if w.Start, err = parseInstant(from, loc, false); err != nil {
		return models.TimeWindow{}, err
	}
	if w.End, err = parseInstant(to, loc, true); err != nil {
		return models.TimeWindow{}, err
	}
	return w, nil
}

func parseInstant(s string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return nil, &models.ConfigError{Field: "time_window", Message: "invalid time " + s}
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
