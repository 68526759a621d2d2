package postgres

import (
	"context"
	"database/sql"
	"embed"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// NewPgxPool opens a pgx pool and applies embedded goose migrations
// through a short-lived database/sql handle.
func NewPgxPool(ctx context.Context, cfg *Database, migrations embed.FS) (*pgxpool.Pool, error) {
	mdb, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "sql.Open")
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}
	if err := goose.Up(mdb, "."); err != nil {
		return nil, errors.Wrap(err, "goose.Up")
	}
	if err := mdb.Close(); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool.New")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, errors.Wrap(err, "pool.Ping")
	}
	return pool, nil
}
