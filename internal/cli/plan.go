package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdejongh/syncplan/pkg/planner"
)

type planFlags struct {
	filter FilterFlags
	exec   ExecFlags
	save   string
}

// NewPlanCommand creates the plan command
func NewPlanCommand() *cobra.Command {
	var flags planFlags

	cmd := &cobra.Command{
		Use:   "plan [source] [destination]",
		Short: "Preview which files would be copied and how long it would take",
		Long: `Walk the source, match files against the filter and print the plan with
its total size and estimated duration. Nothing is written to the destination;
the probe of --calibrate uses a throwaway file in the nearest existing
directory and removes it.
Use --save to keep the plan as an artifact for "syncplan replay".`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args, &flags)
		},
	}

	addFilterFlags(cmd, &flags.filter)
	addEstimateFlags(cmd, &flags.exec)
	cmd.Flags().StringVar(&flags.save, "save", "", "write the plan artifact to this path")

	return cmd
}

func runPlan(cmd *cobra.Command, args []string, flags *planFlags) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyExecFlags(cmd, cfg, &flags.exec); err != nil {
		return err
	}
	j, err := resolveJob(cfg, args, &flags.filter)
	if err != nil {
		return err
	}

	logger, err := createLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	tp := cfg.Throughput()
	if flags.exec.Calibrate {
		backend, err := openDestination(ctx, cfg, j.Destination)
		if err != nil {
			return err
		}
		defer backend.Close()
		tp = throughput(ctx, cfg, backend, true, logger)
	}

	formatter, err := newFormatter(cfg)
	if err != nil {
		return err
	}

	p := &planner.Planner{Logger: logger}
	plan, err := buildPlan(ctx, p, j, tp)
	if err != nil {
		return err
	}
	if err := formatter.Plan(stdout(cmd), plan); err != nil {
		return err
	}

	if flags.save != "" {
		if err := planner.SaveArtifact(flags.save, plan); err != nil {
			return err
		}
		if !globalFlags.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Plan saved to %s\n", flags.save)
		}
	}
	return nil
}
