package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/watchlist-api/internal/domain"
	"github.com/Clark-Hu/watchlist-api/internal/store"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = domain.ErrNotFound

// Postgres error codes that signal a retryable clash with another writer.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options tunes transactional behaviour.
type Options struct {
	// LockTimeout bounds how long a review write waits for the title row
	// lock before failing with domain.ErrConflict. Zero waits indefinitely.
	LockTimeout time.Duration
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Platforms *PlatformsRepository
	Titles    *TitlesRepository
	Reviews   *ReviewsRepository

	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store, opts Options) *Repository {
	return NewWithPool(st.Pool(), opts)
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool, opts Options) *Repository {
	return &Repository{
		Platforms:   &PlatformsRepository{db: pool},
		Titles:      &TitlesRepository{db: pool},
		Reviews:     &ReviewsRepository{db: pool},
		pool:        pool,
		lockTimeout: opts.LockTimeout,
	}
}

// withTx runs fn in a read-committed transaction, committing on success and
// rolling back on error or panic.
func (r *Repository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
	return classify(err)
}

// classify maps retryable Postgres failures onto domain.ErrConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s (%s)", domain.ErrConflict, pgErr.Message, pgErr.Code)
		}
	}
	return err
}

func notFound(err error, what, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return err
}
