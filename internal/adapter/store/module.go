package store

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
)

var Module = fx.Module("store",
	fx.Provide(
		func(pool *pgxpool.Pool) *PostgresStore { return NewPostgresStore(pool) },
	),
)
