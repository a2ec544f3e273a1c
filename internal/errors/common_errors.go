package errors

import (
	"fmt"
)

// Common error codes
const (
	CodeCredentialUnavailable = "001"

	CodeLoadRejected  = "001"
	CodeLoadNoObjects = "002"
	CodeLoadClear     = "003"

	CodeQueryFailed   = "001"
	CodeQueryTruncate = "002"

	CodeQualityEmptyResult = "001"
	CodeQualityZeroRows    = "002"

	CodeConfigInvalid    = "001"
	CodeConfigDefinition = "002"
)

// NewCredentialError creates an error for credentials that could not be obtained
func NewCredentialError(ref string, originalErr error) *PipelineError {
	return NewPipelineError(ErrorCategoryCredential, CodeCredentialUnavailable,
		fmt.Sprintf("Could not obtain credentials '%s'", ref),
		"Credential lookup").
		WithKind(ErrCredential).
		WithContext("credential_ref", ref).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Check AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or the named profile in ~/.aws/credentials",
			"If running on EC2, verify the instance role can be assumed",
		)
}

// NewLoadError creates an error for a bulk-load statement the warehouse rejected
func NewLoadError(table, detail string, originalErr error) *PipelineError {
	return NewPipelineError(ErrorCategoryLoad, CodeLoadRejected,
		fmt.Sprintf("Bulk load into '%s' failed: %s", table, detail),
		"Stage").
		WithKind(ErrLoad).
		WithContext("table", table).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Verify the source location exists and the credentials can read it",
			"Check that the format hint matches the record structure of the staged files",
			"Inspect STL_LOAD_ERRORS on the warehouse for the rejected rows",
		)
}

// NewNoObjectsError creates an error for a source location with nothing to load
func NewNoObjectsError(table, location string) *PipelineError {
	return NewPipelineError(ErrorCategoryLoad, CodeLoadNoObjects,
		fmt.Sprintf("No objects found under '%s'", location),
		"Stage").
		WithKind(ErrLoad).
		WithContext("table", table).
		WithContext("location", location).
		WithTroubleshooting(
			"Check the logical time rendered into the source location template",
			"Verify the upstream producer has landed data for this partition",
		)
}

// NewQueryError creates an error for a failing transform or truncate statement
func NewQueryError(table, detail string, originalErr error) *PipelineError {
	return NewPipelineError(ErrorCategoryQuery, CodeQueryFailed,
		fmt.Sprintf("Loading '%s' failed: %s", table, detail),
		"Load").
		WithKind(ErrQuery).
		WithContext("table", table).
		WithOriginalError(originalErr).
		WithTroubleshooting(
			"Run the transform query by hand against the staging tables",
			"Check the column list of the destination table matches the query output",
		)
}

// NewEmptyResultError creates an error for a count query that returned no rows at all
func NewEmptyResultError(table string) *PipelineError {
	return NewPipelineError(ErrorCategoryQuality, CodeQualityEmptyResult,
		fmt.Sprintf("Data quality check failed. %s returned no results", table),
		"Quality check").
		WithKind(ErrEmptyResult).
		WithContext("table", table).
		WithTroubleshooting(
			"Verify the table exists in the target schema",
		)
}

// NewZeroRowsError creates an error for a table whose row count is zero
func NewZeroRowsError(table string) *PipelineError {
	return NewPipelineError(ErrorCategoryQuality, CodeQualityZeroRows,
		fmt.Sprintf("Data quality check failed. %s contained 0 rows", table),
		"Quality check").
		WithKind(ErrZeroRows).
		WithContext("table", table).
		WithTroubleshooting(
			"Check the upstream load task for this table",
			"Check that the staging tables held data for this run's partition",
		)
}

// NewConfigError creates an error for an invalid configuration value
func NewConfigError(key, message string) *PipelineError {
	return NewPipelineError(ErrorCategoryConfiguration, CodeConfigInvalid, message, "Configuration").
		WithKind(ErrConfig).
		WithContext("key", key)
}

// NewDefinitionError creates an error for an invalid pipeline definition
func NewDefinitionError(source string, originalErr error) *PipelineError {
	return NewPipelineError(ErrorCategoryConfiguration, CodeConfigDefinition,
		fmt.Sprintf("Invalid pipeline definition '%s'", source),
		"Definition load").
		WithKind(ErrConfig).
		WithContext("source", source).
		WithOriginalError(originalErr)
}
