// Package pgstore implements paramstore.Store on PostgreSQL. One routine
// commit maps to one transaction, which gives the atomicity the engine
// requires without any engine-side locking.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qulab/autocal/internal/paramstore"
)

// Store is a PostgreSQL-backed qubit parameter store.
type Store struct {
	pool *pgxpool.Pool
}

// NewPool creates a pgx pool from a DSN with the limits the engine needs.
// Commits are small and rare, so the pool stays modest.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// New wraps an existing pool as a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the parameter table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS qubit_parameters (
			qubit_id   TEXT             NOT NULL,
			name       TEXT             NOT NULL,
			value      DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ      NOT NULL DEFAULT now(),
			PRIMARY KEY (qubit_id, name)
		)
	`)
	if err != nil {
		return fmt.Errorf("create qubit_parameters: %w", err)
	}
	return nil
}

// Read returns one stored parameter value.
func (s *Store) Read(ctx context.Context, qubitID, name string) (float64, error) {
	query := `
		SELECT value
		FROM qubit_parameters
		WHERE qubit_id = $1 AND name = $2
	`
	var value float64
	err := s.pool.QueryRow(ctx, query, qubitID, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, paramstore.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read parameter %s/%s: %w", qubitID, name, err)
	}
	return value, nil
}

// Snapshot returns all stored parameters for a qubit.
func (s *Store) Snapshot(ctx context.Context, qubitID string) (map[string]float64, error) {
	query := `
		SELECT name, value
		FROM qubit_parameters
		WHERE qubit_id = $1
	`
	rows, err := s.pool.Query(ctx, query, qubitID)
	if err != nil {
		return nil, fmt.Errorf("snapshot parameters for %s: %w", qubitID, err)
	}
	defer rows.Close()

	snap := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan parameter row: %w", err)
		}
		snap[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parameter rows: %w", err)
	}
	return snap, nil
}

// Commit atomically upserts a set of parameters for a qubit inside a
// single transaction.
func (s *Store) Commit(ctx context.Context, qubitID string, params map[string]float64) error {
	if len(params) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO qubit_parameters (qubit_id, name, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (qubit_id, name)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	for name, value := range params {
		if _, err := tx.Exec(ctx, query, qubitID, name, value); err != nil {
			return fmt.Errorf("upsert parameter %s/%s: %w", qubitID, name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit parameters for %s: %w", qubitID, err)
	}
	return nil
}
