package models

import (
	"time"
)

// TimeWindowKind selects how the modification time criterion is evaluated
type TimeWindowKind string

const (
	// WindowNone places no bound on modification time
	WindowNone TimeWindowKind = "none"
	// WindowLastHour matches files modified in the hour before now
	WindowLastHour TimeWindowKind = "last_hour"
	// WindowToday matches files modified since local midnight
	WindowToday TimeWindowKind = "today"
	// WindowRange matches files modified within [Start, End]
	WindowRange TimeWindowKind = "range"
)

// TimeWindow is the modification time criterion of a FilterSpec
type TimeWindow struct {
	Kind  TimeWindowKind `json:"kind" yaml:"kind"`
	Start *time.Time     `json:"start,omitempty" yaml:"start,omitempty"`
	End   *time.Time     `json:"end,omitempty" yaml:"end,omitempty"`
}

// Bounds resolves the window against now. ok is false when the window is unbounded.
// An explicit range may leave either side open.
func (w TimeWindow) Bounds(now time.Time) (start, end time.Time, ok bool) {
	switch w.Kind {
	case WindowLastHour:
		return now.Add(-time.Hour), now, true
	case WindowToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), now, true
	case WindowRange:
		if w.Start == nil && w.End == nil {
			return time.Time{}, time.Time{}, false
		}
		if w.Start != nil {
			start = *w.Start
		}
		if w.End != nil {
			end = *w.End
		}
		return start, end, true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// SizeRange bounds file size in bytes. Nil means unbounded on that side.
type SizeRange struct {
	Min *int64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *int64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Contains reports whether size lies within [Min or 0, Max or +inf]
func (r SizeRange) Contains(size int64) bool {
	if r.Min != nil && size < *r.Min {
		return false
	}
	if r.Max != nil && size > *r.Max {
		return false
	}
	return true
}

// FilterSpec is the combined name/directory/time/size rule of a sync job
type FilterSpec struct {
	// Patterns are glob patterns; an empty set matches every name
	Patterns []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`

	// IncludeDirs restricts matching to files under these relative directories
	IncludeDirs []string `json:"include_dirs,omitempty" yaml:"include_dirs,omitempty"`

	Time TimeWindow `json:"time_window" yaml:"time_window"`
	Size SizeRange  `json:"size_range" yaml:"size_range"`
}

// Validate checks the structural invariants of the spec.
// Pattern syntax is checked when the filter engine compiles the spec.
func (s *FilterSpec) Validate() error {
	if s.Size.Min != nil && *s.Size.Min < 0 {
		return &ConfigError{Field: "size_range.min", Message: "must not be negative"}
	}
	if s.Size.Max != nil && *s.Size.Max < 0 {
		return &ConfigError{Field: "size_range.max", Message: "must not be negative"}
	}
	if s.Size.Min != nil && s.Size.Max != nil && *s.Size.Min > *s.Size.Max {
		return &ConfigError{Field: "size_range", Message: "min_bytes must not exceed max_bytes"}
	}

	switch s.Time.Kind {
	case "", WindowNone, WindowLastHour, WindowToday:
	case WindowRange:
		if s.Time.Start != nil && s.Time.End != nil && s.Time.Start.After(*s.Time.End) {
			return &ConfigError{Field: "time_window", Message: "start must not be after end"}
		}
	default:
		return &ConfigError{Field: "time_window.kind", Message: "unknown kind " + string(s.Time.Kind)}
	}

	for _, p := range s.Patterns {
		if p == "" {
			return &ConfigError{Field: "patterns", Message: "empty pattern"}
		}
	}
	return nil
}
