// Package warehouse executes raw SQL against the analytical warehouse.
package warehouse

import (
	"context"
	"regexp"
)

// RowSet is the materialised result of a query, one slice per row.
type RowSet [][]any

// Client is the capability operators use to reach the warehouse. Statements
// are parameterless raw SQL.
type Client interface {
	Execute(ctx context.Context, statement string) error
	Query(ctx context.Context, statement string) (RowSet, error)
}

var secretLiteral = regexp.MustCompile(`(?i)\b(ACCESS_KEY_ID|SECRET_ACCESS_KEY|SESSION_TOKEN)(\s+)'[^']*'`)

// Redact masks credential literals embedded in COPY statements so the
// statement can be logged.
func Redact(statement string) string {
	return secretLiteral.ReplaceAllString(statement, "$1$2'***'")
}
