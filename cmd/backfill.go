package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maxkimambo/sparkflow/internal/dag"
	pipelineerrors "github.com/maxkimambo/sparkflow/internal/errors"
	"github.com/maxkimambo/sparkflow/internal/logger"
	"github.com/maxkimambo/sparkflow/internal/report"
)

type backfillOptions struct {
	definition  string
	from        string
	to          string
	parallel    int
	dryRun      bool
	maxParallel int
}

var backfillFlags backfillOptions

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Run the pipeline for every interval between two logical times",
	Long: `Run the pipeline for every interval between two logical times.

One run is started per schedule interval from --from through --to, both included.
Runs share the graph but not their state, and a failed run does not stop the others.

⚠️  Stage tasks clear their staging table before copying. Runs executing at the
same time can clear each other's staged rows, so keep --parallel at 1 unless the
staging tables are partitioned per run.

EXAMPLES:
# Backfill one day of hourly runs, one at a time
sparkflow backfill --from 2018-11-01T00:00:00Z --to 2018-11-01T23:00:00Z
`,
	RunE: runBackfill,
}

func init() {
	f := backfillCmd.Flags()
	f.StringVarP(&backfillFlags.definition, "definition", "d", "", "Pipeline definition file (default: PIPELINE_DEFINITION or the built-in pipeline)")
	f.StringVar(&backfillFlags.from, "from", "", "First logical time, in UTC (required)")
	f.StringVar(&backfillFlags.to, "to", "", "Last logical time, in UTC (required)")
	f.IntVar(&backfillFlags.parallel, "parallel", 1, "Runs executing at the same time")
	f.BoolVar(&backfillFlags.dryRun, "dry-run", false, "Log statements instead of executing them")
	f.IntVar(&backfillFlags.maxParallel, "max-parallel", 0, "Maximum tasks running at once within each run")

	_ = backfillCmd.MarkFlagRequired("from")
	_ = backfillCmd.MarkFlagRequired("to")
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	if backfillFlags.parallel < 1 {
		return pipelineerrors.NewConfigError("parallel", "must be at least 1")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	def, err := loadDefinition(cfg, backfillFlags.definition)
	if err != nil {
		return err
	}
	interval, err := def.Interval()
	if err != nil {
		return err
	}
	from, err := parseLogicalTime(backfillFlags.from, interval, time.Now())
	if err != nil {
		return err
	}
	to, err := parseLogicalTime(backfillFlags.to, interval, time.Now())
	if err != nil {
		return err
	}
	slots, err := scheduleSlots(from, to, interval)
	if err != nil {
		return err
	}
	graph, err := def.Build()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	ec := executorConfig(cfg, backfillFlags.maxParallel)
	res, err := openResources(ctx, cfg, backfillFlags.dryRun, ec.MaxParallelTasks*backfillFlags.parallel)
	if err != nil {
		return err
	}
	defer res.close()

	if backfillFlags.parallel > 1 {
		logger.User.Warnf("Running %d backfill runs at once; stage tasks share their staging tables", backfillFlags.parallel)
	}
	logger.User.Startingf("Backfilling %s: %d runs from %s to %s", def.Name, len(slots),
		from.Format(time.RFC3339), to.Format(time.RFC3339))

	executor := dag.NewExecutor(ec)
	results := make([]report.SlotResult, len(slots))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(backfillFlags.parallel)
	for i, slot := range slots {
		i, slot := i, slot
		g.Go(func() error {
			results[i].LogicalTime = slot
			if err := gCtx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			outcome, err := executor.Execute(gCtx, graph, res.env(slot))
			results[i].Outcome = outcome
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	fmt.Fprintln(cmd.OutOrStdout(), report.BackfillSummary(results))

	failed := 0
	for _, r := range results {
		if !r.Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("backfill of %s: %d of %d runs failed", def.Name, failed, len(results))
	}
	return nil
}
