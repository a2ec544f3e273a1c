package warehouse

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// UndefinedTableCode is the SQLSTATE for a relation that does not exist
const UndefinedTableCode = "42P01"

// ErrUndefinedTable may be wrapped by clients that do not speak SQLSTATE
var ErrUndefinedTable = errors.New("relation does not exist")

// IsUndefinedTable reports whether err says the queried table is missing,
// either as a server error carrying SQLSTATE 42P01 or as ErrUndefinedTable.
func IsUndefinedTable(err error) bool {
	if errors.Is(err, ErrUndefinedTable) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == UndefinedTableCode
}
