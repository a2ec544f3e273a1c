package warehouse

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	stmt := `COPY staging_events
        FROM 's3://udacity-dend/log_data'
        ACCESS_KEY_ID 'AKIAEXAMPLE'
        SECRET_ACCESS_KEY 'wJalr/XUtnFEMI'
        session_token 'tok'
        JSON 's3://udacity-dend/log_json_path.json'`

	out := Redact(stmt)

	assert.NotContains(t, out, "AKIAEXAMPLE")
	assert.NotContains(t, out, "wJalr/XUtnFEMI")
	assert.NotContains(t, out, "'tok'")
	assert.Contains(t, out, "ACCESS_KEY_ID '***'")
	assert.Contains(t, out, "SECRET_ACCESS_KEY '***'")
	assert.Contains(t, out, "session_token '***'")
	assert.Contains(t, out, "FROM 's3://udacity-dend/log_data'")
	assert.Contains(t, out, "JSON 's3://udacity-dend/log_json_path.json'")
}

func TestDryRun(t *testing.T) {
	d := NewDryRun()
	ctx := context.Background()

	require.NoError(t, d.Execute(ctx, "DELETE FROM staging_songs"))
	require.NoError(t, d.Execute(ctx, "COPY staging_songs\n FROM 's3://b/song_data'\n ACCESS_KEY_ID 'k' SECRET_ACCESS_KEY 's'"))

	rows, err := d.Query(ctx, "SELECT COUNT(*) FROM songs")
	require.NoError(t, err)
	assert.Equal(t, RowSet{{int64(1)}}, rows)

	assert.Equal(t, []string{
		"DELETE FROM staging_songs",
		"COPY staging_songs FROM 's3://b/song_data' ACCESS_KEY_ID '***' SECRET_ACCESS_KEY '***'",
		"SELECT COUNT(*) FROM songs",
	}, d.Statements())
}

func TestDryRun_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDryRun()
	assert.ErrorIs(t, d.Execute(ctx, "DELETE FROM users"), context.Canceled)
	_, err := d.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPostgres_RequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), "  ", 0)
	assert.EqualError(t, err, "warehouse dsn is required")

	_, err = NewPostgres(context.Background(), "postgres://bad host:5439", 0)
	assert.Error(t, err)
}

func TestIsUndefinedTable(t *testing.T) {
	missing := &pgconn.PgError{Severity: "ERROR", Code: UndefinedTableCode, Message: `relation "users" does not exist`}

	assert.True(t, IsUndefinedTable(missing))
	assert.True(t, IsUndefinedTable(fmt.Errorf("count users: %w", missing)))
	assert.True(t, IsUndefinedTable(fmt.Errorf("count users: %w", ErrUndefinedTable)))

	assert.False(t, IsUndefinedTable(nil))
	assert.False(t, IsUndefinedTable(&pgconn.PgError{Code: "42601"}))
	assert.False(t, IsUndefinedTable(errors.New(`relation "users" does not exist`)))
}
