package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCategory represents the category of error
type ErrorCategory string

const (
	// ErrorCategoryCredential represents failures obtaining object storage credentials
	ErrorCategoryCredential ErrorCategory = "CREDENTIAL"
	// ErrorCategoryLoad represents bulk-load statements rejected by the warehouse
	ErrorCategoryLoad ErrorCategory = "LOAD"
	// ErrorCategoryQuery represents malformed or failing transform queries
	ErrorCategoryQuery ErrorCategory = "QUERY"
	// ErrorCategoryQuality represents failed data-quality gates
	ErrorCategoryQuality ErrorCategory = "QUALITY"
	// ErrorCategoryConfiguration represents configuration and definition errors
	ErrorCategoryConfiguration ErrorCategory = "CONFIGURATION"
)

// Kind sentinels, matched with errors.Is.
var (
	ErrCredential  = stderrors.New("credential error")
	ErrLoad        = stderrors.New("load error")
	ErrQuery       = stderrors.New("query error")
	ErrEmptyResult = stderrors.New("empty result")
	ErrZeroRows    = stderrors.New("zero rows")
	ErrConfig      = stderrors.New("configuration error")
)

// PipelineError represents a structured error with context and troubleshooting information
type PipelineError struct {
	Category        ErrorCategory
	Code            string
	Message         string
	Operation       string
	Context         map[string]interface{}
	Troubleshooting []string
	Kind            error
	OriginalError   error
}

// Error implements the error interface. It stays on one line so it can be
// carried in run outcomes and log fields; FormatForCLI renders the long form.
func (e *PipelineError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s-%s: %s", e.Category, e.Code, e.Message))
	if e.OriginalError != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.OriginalError))
	}
	return sb.String()
}

// Unwrap exposes both the kind sentinel and the original error
func (e *PipelineError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.OriginalError != nil {
		errs = append(errs, e.OriginalError)
	}
	return errs
}

// NewPipelineError creates a new pipeline error with the specified parameters
func NewPipelineError(category ErrorCategory, code, message, operation string) *PipelineError {
	return &PipelineError{
		Category:        category,
		Code:            code,
		Message:         message,
		Operation:       operation,
		Context:         make(map[string]interface{}),
		Troubleshooting: []string{},
	}
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	e.Context[key] = value
	return e
}

// WithTroubleshooting adds troubleshooting steps to the error
func (e *PipelineError) WithTroubleshooting(steps ...string) *PipelineError {
	e.Troubleshooting = append(e.Troubleshooting, steps...)
	return e
}

// WithOriginalError adds the original error to the pipeline error
func (e *PipelineError) WithOriginalError(err error) *PipelineError {
	e.OriginalError = err
	return e
}

// WithKind sets the sentinel the error matches under errors.Is
func (e *PipelineError) WithKind(kind error) *PipelineError {
	e.Kind = kind
	return e
}

// As is a shorthand for errors.As on *PipelineError
func As(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
