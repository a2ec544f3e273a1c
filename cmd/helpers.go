package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/sparkflow/internal/config"
	"github.com/maxkimambo/sparkflow/internal/credentials"
	"github.com/maxkimambo/sparkflow/internal/dag"
	pipelineerrors "github.com/maxkimambo/sparkflow/internal/errors"
	"github.com/maxkimambo/sparkflow/internal/logger"
	"github.com/maxkimambo/sparkflow/internal/objectstore"
	"github.com/maxkimambo/sparkflow/internal/operator"
	"github.com/maxkimambo/sparkflow/internal/pipeline"
	"github.com/maxkimambo/sparkflow/internal/report"
	"github.com/maxkimambo/sparkflow/internal/warehouse"
)

// dryRunCredentials stand in for real keys when nothing is executed
var dryRunCredentials = credentials.Static{AccessKey: "DRYRUNACCESSKEY", SecretKey: "dry-run-secret"}

var logicalTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		return config.LoadFile(envFile)
	}
	return config.Load()
}

// loadDefinition prefers the flag, then PIPELINE_DEFINITION, then the built-in pipeline
func loadDefinition(cfg *config.Config, path string) (*pipeline.Definition, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = cfg.Definition
	}
	def, err := pipeline.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	logger.Op.WithFields(map[string]interface{}{
		"pipeline": def.Name,
		"source":   def.Source(),
		"tasks":    len(def.Tasks),
	}).Debug("Pipeline definition loaded")
	return def, nil
}

// parseLogicalTime reads a UTC timestamp and aligns it to the start of its
// schedule interval. An empty value selects the current interval.
func parseLogicalTime(raw string, interval time.Duration, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC().Truncate(interval), nil
	}
	for _, layout := range logicalTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Truncate(interval), nil
		}
	}
	return time.Time{}, pipelineerrors.NewConfigError("logical-time",
		fmt.Sprintf("cannot parse %q; use RFC 3339 such as 2018-11-03T07:00:00Z", raw))
}

// scheduleSlots returns every interval start from from through to, inclusive.
func scheduleSlots(from, to time.Time, interval time.Duration) ([]time.Time, error) {
	from = from.UTC().Truncate(interval)
	to = to.UTC().Truncate(interval)
	if to.Before(from) {
		return nil, pipelineerrors.NewConfigError("to", "must not be before --from")
	}
	var slots []time.Time
	for t := from; !t.After(to); t = t.Add(interval) {
		slots = append(slots, t)
	}
	return slots, nil
}

// runID names a scheduled run after its logical time
func runID(logicalTime time.Time) string {
	return "scheduled__" + logicalTime.UTC().Format("2006-01-02T15:04:05")
}

// resources are the external systems a run talks to
type resources struct {
	warehouse   warehouse.Client
	credentials credentials.Provider
	objects     objectstore.Lister
	region      string
	close       func()
}

func (r *resources) env(logicalTime time.Time) operator.Env {
	return operator.Env{
		Warehouse:   r.warehouse,
		Credentials: r.credentials,
		Objects:     r.objects,
		Region:      r.region,
		LogicalTime: logicalTime,
		RunID:       runID(logicalTime),
	}
}

// openResources connects to the warehouse, or to nothing for a dry run.
func openResources(ctx context.Context, cfg *config.Config, dryRun bool, maxConns int) (*resources, error) {
	if dryRun {
		logger.User.Info("Dry run: statements are logged, not executed")
		creds := credentials.Provider(dryRunCredentials)
		if cfg.HasStaticKeys() {
			creds = credentials.Static{
				AccessKey:    cfg.AWS.AccessKeyID,
				SecretKey:    cfg.AWS.SecretAccessKey,
				SessionToken: cfg.AWS.SessionToken,
			}
		}
		return &resources{warehouse: warehouse.NewDryRun(), credentials: creds, region: cfg.AWS.Region, close: func() {}}, nil
	}

	if cfg.WarehouseDSN == "" {
		return nil, pipelineerrors.NewConfigError("WAREHOUSE_DSN", "a warehouse DSN is required unless --dry-run is set").
			WithTroubleshooting(
				"Set WAREHOUSE_DSN to a postgres:// URL for the cluster",
				"Or pass --dry-run to print the statements instead",
			)
	}
	pg, err := warehouse.NewPostgres(ctx, cfg.WarehouseDSN, poolSize(maxConns))
	if err != nil {
		return nil, pipelineerrors.NewConfigError("WAREHOUSE_DSN", err.Error())
	}
	if err := pg.Ping(ctx); err != nil {
		pg.Close()
		return nil, pipelineerrors.NewConfigError("WAREHOUSE_DSN", fmt.Sprintf("warehouse unreachable: %v", err))
	}

	res := &resources{
		warehouse: pg,
		credentials: credentials.NewChainProvider(credentials.ChainOptions{
			AccessKey:       cfg.AWS.AccessKeyID,
			SecretKey:       cfg.AWS.SecretAccessKey,
			SessionToken:    cfg.AWS.SessionToken,
			CredentialsFile: cfg.AWS.CredentialsFile,
		}),
		region: cfg.AWS.Region,
		close:  pg.Close,
	}
	if cfg.S3.Preflight {
		res.objects = objectstore.NewS3Lister(objectstore.S3Config{
			Endpoint: cfg.S3.Endpoint,
			Region:   cfg.AWS.Region,
			UseSSL:   cfg.S3.UseSSL,
		})
	}
	return res, nil
}

// poolSize fits a connection count into the pool's int32. Zero or less
// keeps the driver default.
func poolSize(n int) int32 {
	switch {
	case n <= 0:
		return 0
	case n > math.MaxInt32:
		return math.MaxInt32
	}
	return int32(n)
}

func executorConfig(cfg *config.Config, maxParallel int) *dag.ExecutorConfig {
	ec := dag.DefaultExecutorConfig()
	ec.MaxParallelTasks = cfg.MaxParallelTasks
	if maxParallel > 0 {
		ec.MaxParallelTasks = maxParallel
	}
	ec.TaskTimeout = cfg.TaskTimeout
	return ec
}

// signalContext is cancelled on SIGINT or SIGTERM so a run stops promptly.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// printOutcome writes the per-task table and the run summary, and the full
// cause to errOut when the run failed.
func printOutcome(out, errOut io.Writer, g *dag.Graph, o *dag.Outcome) {
	if tbl, err := report.OutcomeTable(g, o); err == nil {
		fmt.Fprint(out, tbl.String())
	}
	fmt.Fprintln(out, report.RunSummary(o))
	if !o.Succeeded() && o.Cause != nil {
		fmt.Fprint(errOut, pipelineerrors.FormatForCLI(o.Cause))
	}
}
