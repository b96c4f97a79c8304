// Package db holds the Postgres plumbing shared by every store: the pool
// handle, per-call deadlines, transactions and driver error translation.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/toolshelf/internal/apperr"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the injected store handle. It is constructed once per process (or
// per test) and passed to each store; there is no package-level pool.
type DB struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// Open connects a pool and verifies it with a ping bounded by timeout.
func Open(ctx context.Context, url string, maxConns int32, timeout time.Duration) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return New(pool, timeout), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, timeout time.Duration) *DB {
	return &DB{pool: pool, timeout: timeout}
}

// Pool exposes the underlying pool for health checks and stats.
func (d *DB) Pool() *pgxpool.Pool { return d.pool }

// Q returns the pool as a Querier.
func (d *DB) Q() Querier { return d.pool }

// Ping checks the database is reachable within the query timeout.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.WithTimeout(ctx)
	defer cancel()
	return d.pool.Ping(ctx)
}

// Close releases all pool connections.
func (d *DB) Close() { d.pool.Close() }

// WithTimeout bounds ctx by the configured query timeout. Callers defer the
// returned cancel.
func (d *DB) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

// WithTx runs fn inside a read-committed transaction. fn's error rolls
// back; a nil return commits.
func (d *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Stats reports pool connection counts for the metrics collector.
func (d *DB) Stats() (total, idle, acquired int32) {
	s := d.pool.Stat()
	return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
}

// SQLSTATE codes the stores care about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
)

// Classify translates a driver error into an apperr kind. notFound is the
// caller-facing message used for missing rows and dangling references;
// conflict is used for unique violations. Errors that are already
// classified pass through.
func Classify(op string, err error, notFound, conflict string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return apperr.WithOp(op, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(op, notFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Conflict(op, conflict)
		case codeForeignKeyViolation:
			return apperr.NotFound(op, notFound)
		case codeInvalidText, codeCheckViolation, codeNotNullViolation:
			return apperr.Validation(op, "invalid input")
		}
		return apperr.Unexpected(op, err)
	}

	if IsTransient(err) {
		return apperr.Unavailable(op, err)
	}
	return apperr.Unexpected(op, err)
}

// IsTransient reports whether err is a timeout or connection failure that
// is safe to retry.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
