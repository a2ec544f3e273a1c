package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineError_KindMatching(t *testing.T) {
	cause := stderrors.New("connection reset")

	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"credential", NewCredentialError("aws_credentials", cause), ErrCredential},
		{"load", NewLoadError("staging_events", "rejected", cause), ErrLoad},
		{"no objects", NewNoObjectsError("staging_events", "s3://bucket/log_data"), ErrLoad},
		{"query", NewQueryError("songplays", "syntax error", cause), ErrQuery},
		{"empty result", NewEmptyResultError("artists"), ErrEmptyResult},
		{"zero rows", NewZeroRowsError("artists"), ErrZeroRows},
		{"config", NewConfigError("MAX_PARALLEL_TASKS", "must be positive"), ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("node failed: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind)

			pe, ok := As(wrapped)
			require.True(t, ok)
			assert.Equal(t, tt.err, pe)
		})
	}
}

func TestPipelineError_UnwrapsOriginal(t *testing.T) {
	cause := stderrors.New("permission denied")
	err := NewLoadError("staging_songs", "COPY rejected", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrLoad)
	assert.NotErrorIs(t, err, ErrQuery)
	assert.Equal(t, "LOAD-001: Bulk load into 'staging_songs' failed: COPY rejected: permission denied", err.Error())
}

func TestFormatForCLI(t *testing.T) {
	out := FormatForCLI(NewZeroRowsError("artists"))

	assert.Contains(t, out, "QUALITY Error [QUALITY-002]")
	assert.Contains(t, out, "artists contained 0 rows")
	assert.Contains(t, out, "table: artists")
	assert.Contains(t, out, "How to resolve:")

	assert.Equal(t, "\nError: boom\n", FormatForCLI(stderrors.New("boom")))
}

func TestDisplayErrorSummary(t *testing.T) {
	assert.Equal(t, "QUALITY-001: Data quality check failed. time returned no results",
		DisplayErrorSummary(NewEmptyResultError("time")))

	long := stderrors.New(string(make([]byte, 150)))
	assert.Len(t, DisplayErrorSummary(long), 100)
}

func TestIsDataError(t *testing.T) {
	assert.True(t, IsDataError(NewZeroRowsError("users")))
	assert.False(t, IsDataError(NewQueryError("users", "bad", nil)))
	assert.False(t, IsDataError(stderrors.New("plain")))
	assert.Equal(t, "UNKNOWN", GetErrorCode(stderrors.New("plain")))
	assert.Equal(t, "CREDENTIAL-001", GetErrorCode(NewCredentialError("x", nil)))
}
