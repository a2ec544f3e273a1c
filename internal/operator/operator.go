// Package operator holds the closed set of pipeline operators: Stage,
// LoadFact, LoadDimension and QualityCheck.
//
// Every operator's Run depends only on its fields and the Env passed in, and
// re-running it against the same upstream data leaves the warehouse in the
// same state (LoadFact and Append-mode loads excepted, see WriteMode).
package operator

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/maxkimambo/sparkflow/internal/credentials"
	"github.com/maxkimambo/sparkflow/internal/objectstore"
	"github.com/maxkimambo/sparkflow/internal/warehouse"
)

// Kind identifies an operator variant
type Kind string

const (
	KindStage         Kind = "stage"
	KindLoadFact      Kind = "load_fact"
	KindLoadDimension Kind = "load_dimension"
	KindQualityCheck  Kind = "quality_check"
)

// Kinds lists every operator kind
func Kinds() []Kind {
	return []Kind{KindStage, KindLoadFact, KindLoadDimension, KindQualityCheck}
}

// Operator is a unit of pipeline work. The set of implementations is fixed;
// the unexported method keeps it closed.
type Operator interface {
	Kind() Kind
	// Targets lists the warehouse tables the operator writes or reads
	Targets() []string
	Validate() error
	Run(ctx context.Context, env Env) error

	operator()
}

// Env is the externally supplied context for one run.
type Env struct {
	Warehouse   warehouse.Client
	Credentials credentials.Provider
	// Objects enables the Stage preflight when set
	Objects objectstore.Lister
	// Region is used by stages that do not name their own
	Region string

	// LogicalTime is the schedule slot the run stands for
	LogicalTime time.Time
	RunID       string
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

func validateTable(table string) error {
	if !identifier.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}
