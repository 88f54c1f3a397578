package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdejongh/syncplan/internal/platform"
	"github.com/sdejongh/syncplan/pkg/logging"
	"github.com/sdejongh/syncplan/pkg/planner"
)

type syncFlags struct {
	filter FilterFlags
	exec   ExecFlags
}

// NewSyncCommand creates the sync command
func NewSyncCommand() *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync [source] [destination]",
		Short: "Plan, confirm and copy matching files",
		Long: `Build a plan for the files matching the filter, show its preview and estimate,
ask for confirmation and copy the files to the destination.

The destination may be a local path, user@host:/path or sftp://host/path for
SFTP, or s3://bucket/prefix for S3-compatible object stores. The confirmed plan
is kept so "syncplan replay" can run it again without re-matching.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, &flags)
		},
	}

	addFilterFlags(cmd, &flags.filter)
	addEstimateFlags(cmd, &flags.exec)
	addExecFlags(cmd, &flags.exec)
	cmd.Flags().BoolVarP(&flags.exec.Yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&flags.exec.DryRun, "dry-run", false, "print the plan and stop")

	return cmd
}

func runSync(cmd *cobra.Command, args []string, flags *syncFlags) error {
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

	formatter, err := newFormatter(cfg)
	if err != nil {
		return err
	}

	backend, err := openDestination(ctx, cfg, j.Destination)
	if err != nil {
		return err
	}
	defer backend.Close()

	p := &planner.Planner{Logger: logger}
	plan, err := buildPlan(ctx, p, j, throughput(ctx, cfg, backend, flags.exec.Calibrate, logger))
	if err != nil {
		return err
	}

	out := stdout(cmd)
	if err := formatter.Plan(out, plan); err != nil {
		return err
	}
	if flags.exec.DryRun {
		return nil
	}
	if plan.Matched.Len() == 0 {
		logger.Info(ctx, "Nothing to copy", logging.Fields{"plan_id": plan.ID})
		return nil
	}

	confirm := stdinConfirmer(cmd)
	if flags.exec.Yes {
		confirm = planner.AlwaysConfirm
	}

	save, err := platform.LastPlanPath()
	if err != nil {
		logger.Warn(ctx, "No state directory, plan will not be kept", logging.Fields{"error": err.Error()})
		save = ""
	}

	x := &execution{
		cfg:       cfg,
		planner:   p,
		backend:   backend,
		formatter: formatter,
		out:       out,
		logger:    logger,
		save:      save,
	}
	report, err := x.run(ctx, plan, confirm)
	if errors.Is(err, planner.ErrDeclined) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Sync cancelled, nothing was copied.")
		return nil
	}
	if err != nil {
		formatter.Error(err)
		return err
	}
	return exitFor(report)
}
