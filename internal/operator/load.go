package operator

import (
	"context"
	"fmt"
	"strings"

	pipelineerrors "github.com/maxkimambo/sparkflow/internal/errors"
	"github.com/maxkimambo/sparkflow/internal/logger"
)

// WriteMode selects how a load treats existing rows.
type WriteMode int

const (
	// TruncateThenInsert empties the table first. Re-runs are idempotent,
	// but the truncate and insert are separate statements, not one transaction.
	TruncateThenInsert WriteMode = iota
	// Append inserts on top of existing rows; running twice doubles them.
	Append
)

func (m WriteMode) String() string {
	switch m {
	case TruncateThenInsert:
		return "truncate_then_insert"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

// ParseWriteMode accepts the names produced by String. Empty means
// TruncateThenInsert.
func ParseWriteMode(s string) (WriteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "truncate_then_insert", "truncate":
		return TruncateThenInsert, nil
	case "append":
		return Append, nil
	default:
		return 0, fmt.Errorf("unknown write mode %q", s)
	}
}

// LoadFact appends the rows selected by TransformQuery to the fact table.
// Facts are not re-derivable without re-staging, so there is no truncate mode.
type LoadFact struct {
	DestinationTable string
	TransformQuery   string
}

func (l *LoadFact) Kind() Kind        { return KindLoadFact }
func (l *LoadFact) Targets() []string { return []string{l.DestinationTable} }
func (l *LoadFact) operator()         {}

func (l *LoadFact) Validate() error {
	return validateLoad(l.DestinationTable, l.TransformQuery)
}

func (l *LoadFact) Run(ctx context.Context, env Env) error {
	logger.User.Loadf("Loading fact table %s", l.DestinationTable)
	return load(ctx, env, l.DestinationTable, l.TransformQuery, Append)
}

// LoadDimension fills a dimension table from TransformQuery. The zero
// WriteMode is TruncateThenInsert.
type LoadDimension struct {
	DestinationTable string
	TransformQuery   string
	WriteMode        WriteMode
}

func (l *LoadDimension) Kind() Kind        { return KindLoadDimension }
func (l *LoadDimension) Targets() []string { return []string{l.DestinationTable} }
func (l *LoadDimension) operator()         {}

func (l *LoadDimension) Validate() error {
	if l.WriteMode != TruncateThenInsert && l.WriteMode != Append {
		return fmt.Errorf("load %s: unknown write mode %d", l.DestinationTable, l.WriteMode)
	}
	return validateLoad(l.DestinationTable, l.TransformQuery)
}

func (l *LoadDimension) Run(ctx context.Context, env Env) error {
	logger.User.Loadf("Loading dimension table %s (%s)", l.DestinationTable, l.WriteMode)
	return load(ctx, env, l.DestinationTable, l.TransformQuery, l.WriteMode)
}

func validateLoad(table, query string) error {
	if err := validateTable(table); err != nil {
		return err
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("load %s: transform query is required", table)
	}
	return nil
}

func load(ctx context.Context, env Env, table, query string, mode WriteMode) error {
	log := logger.Op.WithFields(map[string]interface{}{
		"table":  table,
		"mode":   mode.String(),
		"run_id": env.RunID,
	})

	if mode == TruncateThenInsert {
		log.Info("Truncating destination table")
		if err := env.Warehouse.Execute(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			e := pipelineerrors.NewQueryError(table, "truncate failed", err)
			e.Code = pipelineerrors.CodeQueryTruncate
			return e
		}
	}

	insert := fmt.Sprintf("INSERT INTO %s %s", table, strings.TrimSpace(query))
	if err := env.Warehouse.Execute(ctx, insert); err != nil {
		return pipelineerrors.NewQueryError(table, "insert failed", err)
	}

	log.Debug("Insert finished")
	return nil
}
