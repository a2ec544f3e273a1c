package errors

import (
	"fmt"
	"sort"
	"strings"
)

// DisplayErrorSummary provides a brief summary of the error for logs
func DisplayErrorSummary(err error) string {
	if pe, ok := As(err); ok {
		return fmt.Sprintf("%s-%s: %s", pe.Category, pe.Code, pe.Message)
	}

	errStr := err.Error()
	if len(errStr) > 100 {
		return errStr[:97] + "..."
	}
	return errStr
}

// FormatForCLI formats an error for command-line display with proper spacing
func FormatForCLI(err error) string {
	pe, ok := As(err)
	if !ok {
		return fmt.Sprintf("\nError: %v\n", err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\n%s Error [%s-%s]\n", pe.Category, pe.Category, pe.Code))
	sb.WriteString(fmt.Sprintf("  %s\n", pe.Message))

	if pe.Operation != "" {
		sb.WriteString(fmt.Sprintf("\nFailed Operation: %s\n", pe.Operation))
	}

	if len(pe.Context) > 0 {
		keys := make([]string, 0, len(pe.Context))
		for k := range pe.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, key := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", key, pe.Context[key]))
		}
	}

	if len(pe.Troubleshooting) > 0 {
		sb.WriteString("\nHow to resolve:\n")
		for i, step := range pe.Troubleshooting {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
		}
	}

	if pe.OriginalError != nil {
		sb.WriteString(fmt.Sprintf("\nTechnical details: %v\n", pe.OriginalError))
	}

	return sb.String()
}

// IsDataError reports whether err is a logical data problem rather than an
// infrastructure failure.
func IsDataError(err error) bool {
	if pe, ok := As(err); ok {
		return pe.Category == ErrorCategoryQuality
	}
	return false
}

// GetErrorCode extracts the error code for reporting
func GetErrorCode(err error) string {
	if pe, ok := As(err); ok {
		return fmt.Sprintf("%s-%s", pe.Category, pe.Code)
	}
	return "UNKNOWN"
}
