package operator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/sparkflow/internal/credentials"
	pipelineerrors "github.com/maxkimambo/sparkflow/internal/errors"
	"github.com/maxkimambo/sparkflow/internal/warehouse"
	"github.com/maxkimambo/sparkflow/internal/warehouse/warehousetest"
)

var testCreds = credentials.Static{AccessKey: "AKIATEST", SecretKey: "topsecret"}

type listerFunc func(ctx context.Context, location string, creds credentials.Credentials) (bool, error)

func (f listerFunc) HasObjects(ctx context.Context, location string, creds credentials.Credentials) (bool, error) {
	return f(ctx, location, creds)
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	pe, ok := pipelineerrors.As(err)
	require.True(t, ok, "expected a pipeline error, got %v", err)
	return pe.Code
}

func newEnv(wh *warehousetest.Fake) Env {
	return Env{
		Warehouse:   wh,
		Credentials: testCreds,
		LogicalTime: time.Date(2018, 11, 3, 7, 0, 0, 0, time.UTC),
		RunID:       "scheduled__2018-11-03T07:00:00",
	}
}

func TestRenderLocation(t *testing.T) {
	env := newEnv(warehousetest.New())

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"Plain", "s3://udacity-dend/song_data", "s3://udacity-dend/song_data"},
		{"Partitioned", "s3://udacity-dend/log_data/{{.Year}}/{{.Month}}/{{.Ds}}-events.json", "s3://udacity-dend/log_data/2018/11/2018-11-03-events.json"},
		{"Hour", "s3://b/{{.Day}}/{{.Hour}}", "s3://b/03/07"},
		{"RunID", "s3://b/{{.RunID}}", "s3://b/scheduled__2018-11-03T07:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderLocation(tt.raw, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := RenderLocation("s3://b/{{.Nope}}", env)
	assert.Error(t, err)
}

func TestStage_Run(t *testing.T) {
	wh := warehousetest.New().CreateTable("staging_events")
	wh.SeedRows("staging_events", []any{"stale"})
	wh.PutObject("s3://udacity-dend/log_data/2018/11/a.json", []any{"e1"}, []any{"e2"})

	op := &Stage{
		SourceLocation:   "s3://udacity-dend/log_data/{{.Year}}/{{.Month}}",
		DestinationTable: "staging_events",
		FormatHint:       "s3://udacity-dend/log_json_path.json",
		CredentialRef:    "aws_credentials",
	}
	require.NoError(t, op.Validate())

	env := newEnv(wh)
	require.NoError(t, op.Run(context.Background(), env))
	assert.Equal(t, [][]any{{"e1"}, {"e2"}}, wh.Rows("staging_events"))

	stmts := wh.Statements()
	require.Len(t, stmts, 2)
	assert.Equal(t, "DELETE FROM staging_events", stmts[0])
	assert.Equal(t, "COPY staging_events FROM 's3://udacity-dend/log_data/2018/11' "+
		"ACCESS_KEY_ID 'AKIATEST' SECRET_ACCESS_KEY 'topsecret' "+
		"JSON 's3://udacity-dend/log_json_path.json' REGION 'us-west-2'", stmts[1])

	// Clearing first makes a second run land on the same rows
	require.NoError(t, op.Run(context.Background(), env))
	assert.Len(t, wh.Rows("staging_events"), 2)
}

func TestStage_FormatClause(t *testing.T) {
	assert.Equal(t, "JSON 'auto'", formatClause(""))
	assert.Equal(t, "JSON 'auto'", formatClause("auto"))
	assert.Equal(t, "CSV", formatClause("CSV"))
	assert.Equal(t, "JSON 's3://b/it''s.json'", formatClause("s3://b/it's.json"))
}

func TestStage_SessionTokenAndRegion(t *testing.T) {
	op := &Stage{DestinationTable: "t", Region: "eu-central-1"}
	stmt := op.copyStatement("s3://b/p", op.region(Env{}), "K", "S", "TOKEN")
	assert.Contains(t, stmt, "SESSION_TOKEN 'TOKEN'")
	assert.Contains(t, stmt, "REGION 'eu-central-1'")
}

func TestStage_Region(t *testing.T) {
	tests := []struct {
		name       string
		taskRegion string
		envRegion  string
		want       string
	}{
		{"configured region fills the gap", "", "eu-west-1", "eu-west-1"},
		{"task region wins", "eu-central-1", "eu-west-1", "eu-central-1"},
		{"default when neither is set", "", "", DefaultRegion},
		{"blank task region is ignored", "  ", "ap-south-1", "ap-south-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := warehousetest.New().CreateTable("staging_events").PutObject("s3://b/log_data/part-0.json", []any{"e1"})
			env := newEnv(wh)
			env.Region = tt.envRegion

			op := &Stage{SourceLocation: "s3://b/log_data", DestinationTable: "staging_events", Region: tt.taskRegion}
			require.NoError(t, op.Run(context.Background(), env))

			stmts := wh.Statements()
			require.NotEmpty(t, stmts)
			assert.Contains(t, stmts[len(stmts)-1], "REGION '"+tt.want+"'")
		})
	}
}

func TestStage_CredentialError(t *testing.T) {
	wh := warehousetest.New().CreateTable("staging_songs")
	env := newEnv(wh)
	env.Credentials = credentials.ProviderFunc(func(ctx context.Context, ref string) (credentials.Credentials, error) {
		return credentials.Credentials{}, errors.New("no profile " + ref)
	})

	op := &Stage{SourceLocation: "s3://b/song_data", DestinationTable: "staging_songs", CredentialRef: "aws_credentials"}
	err := op.Run(context.Background(), env)

	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerrors.ErrCredential)
	assert.Empty(t, wh.Statements(), "nothing should reach the warehouse")

	env.Credentials = nil
	assert.ErrorIs(t, op.Run(context.Background(), env), pipelineerrors.ErrCredential)
}

func TestStage_CopyRejected(t *testing.T) {
	wh := warehousetest.New().CreateTable("staging_songs")
	op := &Stage{SourceLocation: "s3://b/song_data", DestinationTable: "staging_songs"}

	err := op.Run(context.Background(), newEnv(wh))

	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerrors.ErrLoad)
	assert.NotContains(t, err.Error(), "topsecret")
}

func TestStage_ClearFailure(t *testing.T) {
	wh := warehousetest.New().CreateTable("staging_songs")
	wh.FailWhen("DELETE FROM", errors.New("permission denied"), -1)
	op := &Stage{SourceLocation: "s3://b/song_data", DestinationTable: "staging_songs"}

	err := op.Run(context.Background(), newEnv(wh))

	assert.ErrorIs(t, err, pipelineerrors.ErrLoad)
	assert.Equal(t, pipelineerrors.CodeLoadClear, codeOf(t, err))
}

func TestStage_PreflightKeepsTable(t *testing.T) {
	wh := warehousetest.New().CreateTable("staging_events")
	wh.SeedRows("staging_events", []any{"yesterday"})

	env := newEnv(wh)
	var seen string
	env.Objects = listerFunc(func(ctx context.Context, location string, creds credentials.Credentials) (bool, error) {
		seen = location
		assert.Equal(t, "AKIATEST", creds.AccessKey)
		return false, nil
	})

	op := &Stage{SourceLocation: "s3://b/log_data/{{.Ds}}", DestinationTable: "staging_events"}
	err := op.Run(context.Background(), env)

	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerrors.ErrLoad)
	assert.Equal(t, pipelineerrors.CodeLoadNoObjects, codeOf(t, err))
	assert.Equal(t, "s3://b/log_data/2018-11-03", seen)
	assert.Equal(t, [][]any{{"yesterday"}}, wh.Rows("staging_events"))
	assert.Empty(t, wh.Statements())
}

func TestStage_Validate(t *testing.T) {
	assert.Error(t, (&Stage{SourceLocation: "s3://b", DestinationTable: "bad table"}).Validate())
	assert.Error(t, (&Stage{DestinationTable: "t"}).Validate())
	assert.Error(t, (&Stage{SourceLocation: "s3://b/{{.Year", DestinationTable: "t"}).Validate())
	assert.NoError(t, (&Stage{SourceLocation: "s3://b", DestinationTable: "public.t"}).Validate())
}

const songplaySelect = "SELECT md5(events.sessionid || events.start_time) songplay_id FROM staging_events events"

func TestLoadFact_Appends(t *testing.T) {
	wh := warehousetest.New().CreateTable("songplays")
	wh.DefineQuery(songplaySelect, []any{"a"}, []any{"b"})

	op := &LoadFact{DestinationTable: "songplays", TransformQuery: "\n  " + songplaySelect + "\n"}
	require.NoError(t, op.Validate())

	env := newEnv(wh)
	require.NoError(t, op.Run(context.Background(), env))
	require.NoError(t, op.Run(context.Background(), env))

	assert.Len(t, wh.Rows("songplays"), 4)
	assert.Equal(t, []string{
		"INSERT INTO songplays " + songplaySelect,
		"INSERT INTO songplays " + songplaySelect,
	}, wh.Statements())
}

func TestLoadDimension_TruncateIsIdempotent(t *testing.T) {
	wh := warehousetest.New().CreateTable("users")
	wh.DefineQuery("SELECT DISTINCT userid FROM staging_events", []any{1}, []any{2}, []any{3})

	op := &LoadDimension{DestinationTable: "users", TransformQuery: "SELECT DISTINCT userid FROM staging_events"}
	env := newEnv(wh)

	require.NoError(t, op.Run(context.Background(), env))
	first := wh.Rows("users")
	require.NoError(t, op.Run(context.Background(), env))

	assert.Equal(t, first, wh.Rows("users"))
	assert.Equal(t, "TRUNCATE TABLE users", wh.Statements()[0])
}

func TestLoadDimension_AppendDoubles(t *testing.T) {
	wh := warehousetest.New().CreateTable("users")
	wh.DefineQuery("SELECT DISTINCT userid FROM staging_events", []any{1}, []any{2}, []any{3})

	op := &LoadDimension{DestinationTable: "users", TransformQuery: "SELECT DISTINCT userid FROM staging_events", WriteMode: Append}
	env := newEnv(wh)

	require.NoError(t, op.Run(context.Background(), env))
	require.NoError(t, op.Run(context.Background(), env))

	assert.Len(t, wh.Rows("users"), 6)
	for _, stmt := range wh.Statements() {
		assert.False(t, strings.HasPrefix(stmt, "TRUNCATE"))
	}
}

func TestLoad_QueryError(t *testing.T) {
	wh := warehousetest.New().CreateTable("artists")
	op := &LoadDimension{DestinationTable: "artists", TransformQuery: "SELEC nonsense"}

	err := op.Run(context.Background(), newEnv(wh))

	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerrors.ErrQuery)
	pe, ok := pipelineerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "artists", pe.Context["table"])
}

func TestLoad_TruncateFailure(t *testing.T) {
	wh := warehousetest.New().CreateTable("time")
	wh.FailWhen("TRUNCATE", errors.New("lock timeout"), 1)
	op := &LoadDimension{DestinationTable: "time", TransformQuery: "SELECT 1"}

	err := op.Run(context.Background(), newEnv(wh))

	assert.ErrorIs(t, err, pipelineerrors.ErrQuery)
	assert.Equal(t, pipelineerrors.CodeQueryTruncate, codeOf(t, err))
}

func TestWriteMode(t *testing.T) {
	for _, m := range []WriteMode{TruncateThenInsert, Append} {
		parsed, err := ParseWriteMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	m, err := ParseWriteMode("")
	require.NoError(t, err)
	assert.Equal(t, TruncateThenInsert, m)

	_, err = ParseWriteMode("upsert")
	assert.Error(t, err)
	assert.Error(t, (&LoadDimension{DestinationTable: "t", TransformQuery: "SELECT 1", WriteMode: 7}).Validate())
}

func TestQualityCheck_Passes(t *testing.T) {
	wh := warehousetest.New().CreateTable("songplays", "users")
	wh.SeedRows("songplays", []any{1})
	wh.SeedRows("users", []any{1}, []any{2})

	op := &QualityCheck{Tables: []string{"songplays", "users"}, Rule: RuleNonEmpty}
	require.NoError(t, op.Validate())
	require.NoError(t, op.Run(context.Background(), newEnv(wh)))

	assert.Equal(t, []string{"SELECT COUNT(*) FROM songplays", "SELECT COUNT(*) FROM users"}, wh.Statements())
}

func TestQualityCheck_StopsAtFirstFailure(t *testing.T) {
	wh := warehousetest.New().CreateTable("songplays", "users", "songs", "artists", "time")
	for _, table := range []string{"songplays", "users", "songs", "time"} {
		wh.SeedRows(table, []any{1})
	}

	op := &QualityCheck{Tables: []string{"songplays", "users", "songs", "artists", "time"}}
	err := op.Run(context.Background(), newEnv(wh))

	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerrors.ErrZeroRows)
	assert.Contains(t, err.Error(), "artists contained 0 rows")

	stmts := wh.Statements()
	require.Len(t, stmts, 4)
	assert.Equal(t, "SELECT COUNT(*) FROM artists", stmts[3])
}

// queryClient answers every query with the same rows and error
type queryClient struct {
	rows warehouse.RowSet
	err  error
}

func (c queryClient) Execute(ctx context.Context, statement string) error { return c.err }
func (c queryClient) Query(ctx context.Context, statement string) (warehouse.RowSet, error) {
	return c.rows, c.err
}

func TestQualityCheck_EmptyResult(t *testing.T) {
	tests := []struct {
		name   string
		client warehouse.Client
	}{
		{"missing table in the warehouse", warehousetest.New()},
		{"server reports undefined table", queryClient{err: &pgconn.PgError{
			Severity: "ERROR", Code: "42P01", Message: `relation "users" does not exist`,
		}}},
		{"wrapped undefined table", queryClient{err: fmt.Errorf("count: %w", warehouse.ErrUndefinedTable)}},
		{"no result set", queryClient{rows: warehouse.RowSet{}}},
		{"row without columns", queryClient{rows: warehouse.RowSet{{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Env{Warehouse: tt.client}
			err := (&QualityCheck{Tables: []string{"users"}}).Run(context.Background(), env)

			require.Error(t, err)
			assert.ErrorIs(t, err, pipelineerrors.ErrEmptyResult)
			assert.NotErrorIs(t, err, pipelineerrors.ErrQuery)
			assert.NotErrorIs(t, err, pipelineerrors.ErrZeroRows)
			assert.Contains(t, err.Error(), "users returned no results")
		})
	}
}

func TestQualityCheck_OtherServerErrorsAreQueryErrors(t *testing.T) {
	env := Env{Warehouse: queryClient{err: &pgconn.PgError{
		Severity: "ERROR", Code: "42501", Message: "permission denied for relation users",
	}}}

	err := (&QualityCheck{Tables: []string{"users"}}).Run(context.Background(), env)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerrors.ErrQuery)
	assert.NotErrorIs(t, err, pipelineerrors.ErrEmptyResult)
}

func TestQualityCheck_Validate(t *testing.T) {
	assert.Error(t, (&QualityCheck{}).Validate())
	assert.Error(t, (&QualityCheck{Tables: []string{"t"}, Rule: "unique"}).Validate())
	assert.Error(t, (&QualityCheck{Tables: []string{"ok", "not ok"}}).Validate())
}

func TestToCount(t *testing.T) {
	for _, v := range []any{int64(5), int32(5), 5, float64(5), "5", []byte("5")} {
		n, err := toCount(v)
		require.NoError(t, err, "%T", v)
		assert.Equal(t, int64(5), n)
	}
	_, err := toCount(nil)
	assert.Error(t, err)
	_, err = toCount(struct{}{})
	assert.Error(t, err)
}

func TestOperatorKinds(t *testing.T) {
	ops := []Operator{&Stage{}, &LoadFact{}, &LoadDimension{}, &QualityCheck{}}
	var kinds []Kind
	for _, op := range ops {
		kinds = append(kinds, op.Kind())
	}
	assert.Equal(t, Kinds(), kinds)
	assert.Equal(t, []string{"a", "b"}, (&QualityCheck{Tables: []string{"a", "b"}}).Targets())
}
