package operator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	pipelineerrors "github.com/maxkimambo/sparkflow/internal/errors"
	"github.com/maxkimambo/sparkflow/internal/logger"
	"github.com/maxkimambo/sparkflow/internal/warehouse"
)

// Rule names a data-quality rule
type Rule string

const RuleNonEmpty Rule = "non-empty"

// QualityCheck asserts every table in Tables has at least one row. Tables are
// checked in order and the first failure stops the check.
type QualityCheck struct {
	Tables []string
	Rule   Rule
}

func (q *QualityCheck) Kind() Kind        { return KindQualityCheck }
func (q *QualityCheck) Targets() []string { return append([]string(nil), q.Tables...) }
func (q *QualityCheck) operator()         {}

func (q *QualityCheck) Validate() error {
	if len(q.Tables) == 0 {
		return fmt.Errorf("quality check: at least one table is required")
	}
	if q.Rule != "" && q.Rule != RuleNonEmpty {
		return fmt.Errorf("quality check: unsupported rule %q", q.Rule)
	}
	for _, t := range q.Tables {
		if err := validateTable(t); err != nil {
			return err
		}
	}
	return nil
}

func (q *QualityCheck) Run(ctx context.Context, env Env) error {
	for _, table := range q.Tables {
		if err := checkNonEmpty(ctx, env, table); err != nil {
			return err
		}
	}
	return nil
}

func checkNonEmpty(ctx context.Context, env Env, table string) error {
	rows, err := env.Warehouse.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if warehouse.IsUndefinedTable(err) {
		return pipelineerrors.NewEmptyResultError(table).WithOriginalError(err)
	}
	if err != nil {
		return pipelineerrors.NewQueryError(table, "count query failed", err)
	}
	if len(rows) < 1 || len(rows[0]) < 1 {
		return pipelineerrors.NewEmptyResultError(table)
	}

	count, err := toCount(rows[0][0])
	if err != nil {
		return pipelineerrors.NewQueryError(table, "unexpected count value", err)
	}
	if count < 1 {
		return pipelineerrors.NewZeroRowsError(table)
	}

	logger.User.Checkf("Data quality on table %s check passed with %d records", table, count)
	return nil
}

func toCount(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
	case nil:
		return 0, fmt.Errorf("count is NULL")
	default:
		return 0, fmt.Errorf("unsupported count type %T", v)
	}
}
