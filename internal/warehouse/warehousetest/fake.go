// Package warehousetest provides an in-memory warehouse that understands the
// handful of statements the pipeline operators issue.
package warehousetest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maxkimambo/sparkflow/internal/warehouse"
)

var (
	deleteStmt   = regexp.MustCompile(`(?i)^DELETE FROM (\S+)$`)
	truncateStmt = regexp.MustCompile(`(?i)^TRUNCATE (?:TABLE )?(\S+)$`)
	copyStmt     = regexp.MustCompile(`(?i)^COPY (\S+) FROM '([^']*)'`)
	insertStmt   = regexp.MustCompile(`(?i)^INSERT INTO (\S+) (.+)$`)
	countStmt    = regexp.MustCompile(`(?i)^SELECT COUNT\(\*\) FROM (\S+)$`)
)

// Hook runs before every statement. A non-nil error fails the statement.
type Hook func(ctx context.Context, statement string) error

type failure struct {
	contains  string
	err       error
	remaining int // <0 fails forever
}

// Fake is a concurrency-safe in-memory warehouse.
type Fake struct {
	mu         sync.Mutex
	tables     map[string][][]any
	objects    map[string][][]any
	queries    map[string][][]any
	failures   []*failure
	statements []string
	hook       Hook
}

var _ warehouse.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		tables:  make(map[string][][]any),
		objects: make(map[string][][]any),
		queries: make(map[string][][]any),
	}
}

// CreateTable registers an empty table
func (f *Fake) CreateTable(names ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		if _, ok := f.tables[name]; !ok {
			f.tables[name] = nil
		}
	}
	return f
}

// SeedRows replaces the contents of table
func (f *Fake) SeedRows(table string, rows ...[]any) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append([][]any(nil), rows...)
	return f
}

// PutObject lands rows under an object key such as s3://bucket/log_data/a.json
func (f *Fake) PutObject(key string, rows ...[]any) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append(f.objects[key], rows...)
	return f
}

// DefineQuery registers the rows a transform query selects
func (f *Fake) DefineQuery(query string, rows ...[]any) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries[normalize(query)] = append([][]any(nil), rows...)
	return f
}

// FailWhen fails the next times statements containing substr. times < 0 fails forever.
func (f *Fake) FailWhen(substr string, err error, times int) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, &failure{contains: substr, err: err, remaining: times})
	return f
}

// SetHook installs a hook run before every statement, outside the fake's lock.
func (f *Fake) SetHook(h Hook) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = h
	return f
}

// Rows returns a copy of the rows currently in table
func (f *Fake) Rows(table string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.tables[table]...)
}

// Statements returns every normalised statement seen, in arrival order
func (f *Fake) Statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statements...)
}

func (f *Fake) Execute(ctx context.Context, statement string) error {
	stmt, err := f.begin(ctx, statement)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case deleteStmt.MatchString(stmt):
		table := deleteStmt.FindStringSubmatch(stmt)[1]
		if err := f.requireTable(table); err != nil {
			return err
		}
		f.tables[table] = nil
	case truncateStmt.MatchString(stmt):
		table := truncateStmt.FindStringSubmatch(stmt)[1]
		if err := f.requireTable(table); err != nil {
			return err
		}
		f.tables[table] = nil
	case copyStmt.MatchString(stmt):
		m := copyStmt.FindStringSubmatch(stmt)
		table, prefix := m[1], m[2]
		if err := f.requireTable(table); err != nil {
			return err
		}
		found := false
		for key, rows := range f.objects {
			if strings.HasPrefix(key, prefix) {
				found = true
				f.tables[table] = append(f.tables[table], rows...)
			}
		}
		if !found {
			return fmt.Errorf("S3ServiceException: The specified key does not exist: %s", prefix)
		}
	case insertStmt.MatchString(stmt):
		m := insertStmt.FindStringSubmatch(stmt)
		table, query := m[1], m[2]
		if err := f.requireTable(table); err != nil {
			return err
		}
		rows, ok := f.queries[query]
		if !ok {
			return fmt.Errorf("syntax error at or near %q", firstWord(query))
		}
		f.tables[table] = append(f.tables[table], rows...)
	default:
		return fmt.Errorf("unsupported statement: %s", stmt)
	}
	return nil
}

func (f *Fake) Query(ctx context.Context, statement string) (warehouse.RowSet, error) {
	stmt, err := f.begin(ctx, statement)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	m := countStmt.FindStringSubmatch(stmt)
	if m == nil {
		return nil, fmt.Errorf("unsupported query: %s", stmt)
	}
	rows, ok := f.tables[m[1]]
	if !ok {
		return nil, undefinedTable(m[1])
	}
	return warehouse.RowSet{{int64(len(rows))}}, nil
}

func (f *Fake) begin(ctx context.Context, statement string) (string, error) {
	stmt := normalize(statement)

	f.mu.Lock()
	f.statements = append(f.statements, stmt)
	hook := f.hook
	var injected error
	for _, fl := range f.failures {
		if fl.remaining == 0 || !strings.Contains(stmt, fl.contains) {
			continue
		}
		if fl.remaining > 0 {
			fl.remaining--
		}
		injected = fl.err
		break
	}
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, stmt); err != nil {
			return stmt, err
		}
	}
	if injected != nil {
		return stmt, injected
	}
	return stmt, ctx.Err()
}

func (f *Fake) requireTable(table string) error {
	if _, ok := f.tables[table]; !ok {
		return undefinedTable(table)
	}
	return nil
}

// undefinedTable is shaped like the server error Postgres and Redshift return
func undefinedTable(table string) error {
	return &pgconn.PgError{
		Severity: "ERROR",
		Code:     warehouse.UndefinedTableCode,
		Message:  fmt.Sprintf("relation %q does not exist", table),
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstWord(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
