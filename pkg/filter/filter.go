// Package filter selects the files of a sync job from a walked source tree.
//
// A file matches when every criterion class holds: its name satisfies at
// least one pattern (or there are none), it lies under one of the include
// directories (or there are none), its modification time falls inside the
// time window and its size inside the size range. Directories are never
// matched. Matching is pure and preserves input order, so the same entries
// and spec always give the same result.
package filter

import (
	"path"
	"strings"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

// Filter is a compiled FilterSpec
type Filter struct {
	spec        models.FilterSpec
	patterns    []*pattern
	includeDirs []string
}

// Compile validates spec and prepares it for matching.
// Errors are *models.ConfigError.
func Compile(spec models.FilterSpec) (*Filter, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	f := &Filter{spec: spec}
	for _, glob := range spec.Patterns {
		p, err := compilePattern(glob)
		if err != nil {
			return nil, &models.ConfigError{Field: "patterns", Message: err.Error()}
		}
		f.patterns = append(f.patterns, p)
	}
	for _, dir := range spec.IncludeDirs {
		clean := path.Clean(strings.ReplaceAll(dir, "\\", "/"))
		clean = strings.TrimPrefix(clean, "/")
		if clean == "" || clean == "." {
			// the root includes everything
			f.includeDirs = nil
			break
		}
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return nil, &models.ConfigError{Field: "include_dirs", Message: "directory escapes the source root: " + dir}
		}
		f.includeDirs = append(f.includeDirs, clean)
	}
	return f, nil
}

// Match runs spec over entries. now anchors the relative time windows.
func Match(entries []models.FileEntry, spec models.FilterSpec, now time.Time) (models.MatchResult, error) {
	f, err := Compile(spec)
	if err != nil {
		return models.MatchResult{}, err
	}
	return f.Match(entries, now), nil
}

// Match returns the matched subset of entries in input order.
// Entries carrying a walk error are reported in Unreadable.
func (f *Filter) Match(entries []models.FileEntry, now time.Time) models.MatchResult {
	var result models.MatchResult
	start, end, bounded := f.spec.Time.Bounds(now)

	for _, e := range entries {
		if e.Err != nil {
			result.Unreadable = append(result.Unreadable, models.ScanError{Path: e.RelativePath, Err: e.Err})
			continue
		}
		if e.IsDir {
			continue
		}
		if !f.matchName(e.RelativePath) || !f.matchDir(e.RelativePath) {
			continue
		}
		if bounded && !inWindow(e.ModTime, start, end) {
			continue
		}
		if !f.spec.Size.Contains(e.Size) {
			continue
		}
		result.Entries = append(result.Entries, e)
	}
	return result
}

// Spec returns the spec the filter was compiled from
func (f *Filter) Spec() models.FilterSpec {
	return f.spec
}

func (f *Filter) matchName(rel string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	rel = strings.ReplaceAll(rel, "\\", "/")
	for _, p := range f.patterns {
		if p.match(rel) {
			return true
		}
	}
	return false
}

func (f *Filter) matchDir(rel string) bool {
	if len(f.includeDirs) == 0 {
		return true
	}
	rel = strings.ReplaceAll(rel, "\\", "/")
	for _, dir := range f.includeDirs {
		if strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}

// inWindow treats a zero start or end as an open side
func inWindow(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
