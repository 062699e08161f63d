package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	comms_errors "startuphub-comms/pkg/errors"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	limits Limits
}

// NewPostgres wraps a pool. Zero-valued limits take the defaults.
func NewPostgres(pool *pgxpool.Pool, limits Limits) *Postgres {
	if limits.MaxRoomParticipants <= 0 {
		limits.MaxRoomParticipants = DefaultLimits.MaxRoomParticipants
	}
	if limits.MaxCallParticipants <= 0 {
		limits.MaxCallParticipants = DefaultLimits.MaxCallParticipants
	}
	return &Postgres{pool: pool, limits: limits}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// wrapErr folds pgx errors into the module's sentinels.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return comms_errors.ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return comms_errors.ErrBackendTimeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return comms_errors.ErrConflict
		case "23503": // foreign_key_violation
			return comms_errors.ErrNotFound
		}
	}
	return err
}

// withTx runs fn inside a transaction, committing on success.
func (p *Postgres) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return wrapErr(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return wrapErr(err)
	}
	return wrapErr(tx.Commit(ctx))
}

// lockRoom takes the room row lock that serializes InsertMessage and MarkRead
// per room.
func lockRoom(ctx context.Context, tx pgx.Tx, table string, id any) error {
	var one int
	err := tx.QueryRow(ctx, "SELECT 1 FROM "+table+" WHERE id = $1 FOR UPDATE", id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return comms_errors.ErrNotFound
	}
	return err
}
