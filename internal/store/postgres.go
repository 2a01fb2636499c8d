package store

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/efreitasn/simmarket/internal/config"
)

var postgresDialect = dialect{
	name:       "postgres",
	positional: true,
	forUpdate:  " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			balance DOUBLE PRECISION NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS holdings (
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (user_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			price DOUBLE PRECISION,
			amount DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			exec_price DOUBLE PRECISION,
			filled_at BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status, id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id, id)`,
		`CREATE TABLE IF NOT EXISTS market_history (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			period_start BIGINT NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_symbol ON market_history (symbol, period_start)`,
		`CREATE TABLE IF NOT EXISTS news (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
	},
}

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.PostgresConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

// OpenPostgres creates a pgx connection pool, verifies it, and exposes it
// through database/sql. Pending-order reads take row locks so concurrent
// matching passes cannot fill the same order twice.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*SQLStore, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	poolCfg.MinConns = int32(cfg.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	s, err := newSQLStore(ctx, db, postgresDialect)
	if err != nil {
		db.Close()
		pool.Close()
		return nil, err
	}
	// Closing the sql.DB does not close the pool it wraps.
	s.onClose = pool.Close
	return s, nil
}
