package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sdejongh/syncplan/pkg/estimate"
	"github.com/sdejongh/syncplan/pkg/models"
	"github.com/sdejongh/syncplan/pkg/planner"
)

// promptConfirmer asks on out and reads a y/N answer from in.
// A non-interactive session declines without reading.
func promptConfirmer(in io.Reader, out io.Writer, interactive bool) planner.Confirmer {
	return func(plan *models.Plan) bool {
		if !interactive {
			fmt.Fprintln(out, "Not a terminal: refusing to run without confirmation (use --yes)")
			return false
		}

		fmt.Fprintf(out, "Copy %d files (%s) to %s? [y/N] ",
			plan.Matched.Len(), estimate.FormatBytes(plan.TotalBytes), plan.DestinationRoot)

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(out)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

// stdinConfirmer prompts on stderr so json output on stdout stays parseable.
// Only a terminal on stdin counts as interactive.
func stdinConfirmer(cmd *cobra.Command) planner.Confirmer {
	in := cmd.InOrStdin()
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return promptConfirmer(in, cmd.ErrOrStderr(), interactive)
}
