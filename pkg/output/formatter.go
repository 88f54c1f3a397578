// Package output renders plans, the live outcome stream and final reports.
package output

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/sdejongh/syncplan/pkg/models"
)

// Formatter defines the interface for output formatting
// Implementations include human-readable, JSON and progress bar formatters
type Formatter interface {
	// Plan renders an estimated plan with its preview
	Plan(writer io.Writer, plan *models.Plan) error

	// Start initializes the formatter for the execution of plan
	// workers indicates the number of parallel workers for display purposes
	Start(writer io.Writer, plan *models.Plan, workers int) error

	// Outcome reports one finished file
	Outcome(o models.TransferOutcome) error

	// Complete finalizes output and displays summary
	Complete(report *models.SyncReport) error

	// Error reports an error
	Error(err error) error

	// Name returns the formatter name
	Name() string
}

// New returns the formatter called name. "auto" selects the progress bar
// when stdout is a terminal and human output otherwise.
func New(name string) (Formatter, error) {
	switch name {
	case "", "auto":
		if IsTerminal(os.Stdout) {
			return NewProgressFormatter(), nil
		}
		return NewHumanFormatter(), nil
	case "human":
		return NewHumanFormatter(), nil
	case "json":
		return NewJSONFormatter(), nil
	case "progress":
		return NewProgressFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want human, json or progress)", name)
	}
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
