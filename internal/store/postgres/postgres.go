// Package postgres implements store.Store on PostgreSQL via pgx.
// Queue claims use FOR UPDATE SKIP LOCKED so concurrent agent loops never
// double-assign an item.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashvattha/ashvattha/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting the same
// query methods run pooled or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed graph store
type Store struct {
	pool *pgxpool.Pool
	q    querier
	tx   pgx.Tx // non-nil when this handle is transaction-bound
}

// Open connects to the database and verifies the connection
func Open(ctx context.Context, url string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool, q: pool}, nil
}

// InTx runs fn inside a transaction. Nested calls join the open
// transaction instead of beginning a new one.
func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, q: tx, tx: tx})
	})
}

// Close releases the connection pool
func (s *Store) Close() error {
	if s.tx == nil {
		s.pool.Close()
	}
	return nil
}
