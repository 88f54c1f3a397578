package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdejongh/syncplan/internal/platform"
	"github.com/sdejongh/syncplan/pkg/filter"
	"github.com/sdejongh/syncplan/pkg/logging"
	"github.com/sdejongh/syncplan/pkg/planner"
	"github.com/sdejongh/syncplan/pkg/storage"
)

// NewReplayCommand creates the replay command
func NewReplayCommand() *cobra.Command {
	var flags ExecFlags

	cmd := &cobra.Command{
		Use:   "replay [artifact]",
		Short: "Run a saved plan again without re-matching or prompting",
		Long: `Load a plan artifact (by default the last confirmed plan), check that its
cached entries are still current and execute it without asking for
confirmation. When a cached entry has changed the source is walked again and
the stored filter re-applied before running.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args, &flags)
		},
	}

	addExecFlags(cmd, &flags)
	cmd.Flags().StringVar(&flags.Throughput, "throughput", "", "assumed throughput (default: the artifact's)")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "", "output format: auto, human, json, progress")

	return cmd
}

func runReplay(cmd *cobra.Command, args []string, flags *ExecFlags) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyExecFlags(cmd, cfg, flags); err != nil {
		return err
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else if path, err = platform.LastPlanPath(); err != nil {
		return err
	}

	artifact, err := planner.LoadArtifact(path)
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

	var tp float64
	if flags.Throughput != "" {
		v, err := filter.ParseBytes(flags.Throughput)
		if err != nil {
			return err
		}
		tp = float64(v)
	}

	p := &planner.Planner{Logger: logger}
	plan, info, err := p.Replay(ctx, artifact, storage.Walk, cfg.Replay.StaleTolerance, tp)
	if err != nil {
		return err
	}
	if !info.Fresh && !globalFlags.Quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved plan is out of date (%s), re-matched the source.\n", info.Reason)
	}

	out := stdout(cmd)
	if err := formatter.Plan(out, plan); err != nil {
		return err
	}
	if plan.Matched.Len() == 0 {
		logger.Info(ctx, "Nothing to copy", logging.Fields{"plan_id": plan.ID})
		return nil
	}

	backend, err := openDestination(ctx, cfg, plan.DestinationRoot)
	if err != nil {
		return err
	}
	defer backend.Close()

	x := &execution{
		cfg:       cfg,
		planner:   p,
		backend:   backend,
		formatter: formatter,
		out:       out,
		logger:    logger,
		save:      path,
	}
	report, err := x.run(ctx, plan, planner.AlwaysConfirm)
	if err != nil {
		formatter.Error(err)
		return err
	}
	return exitFor(report)
}
