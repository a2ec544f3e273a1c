package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres talks to Redshift (or any PostgreSQL-protocol warehouse) through a
// pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pool for dsn. The simple query protocol is forced
// because Redshift does not support every extended-protocol feature and the
// statements carry no parameters.
func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("warehouse dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse warehouse dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open warehouse pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Ping verifies the warehouse is reachable
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Execute(ctx context.Context, statement string) error {
	_, err := p.pool.Exec(ctx, statement)
	return err
}

func (p *Postgres) Query(ctx context.Context, statement string) (RowSet, error) {
	rows, err := p.pool.Query(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out RowSet
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
