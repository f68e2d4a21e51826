package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the repositories react to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeExclusionViolation   = "23P01"
)

const defaultSerializationRetries = 5

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db      *sqlx.DB
	retries uint64
}

// NewBaseRepository creates a new base repository. retries bounds how often
// a serializable transaction is replayed after losing a race.
func NewBaseRepository(db *sqlx.DB, retries uint64) BaseRepository {
	if retries == 0 {
		retries = defaultSerializationRetries
	}
	return BaseRepository{db: db, retries: retries}
}

// WithSerializableTx runs fn in a SERIALIZABLE transaction and replays it
// with exponential backoff when Postgres aborts it with a serialization
// failure or deadlock. Any other error is returned as is.
func (r *BaseRepository) WithSerializableTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(policy, r.retries), ctx)

	return backoff.Retry(func() error {
		err := r.withTx(ctx, opts, fn)
		if err == nil || isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}

func (r *BaseRepository) withTx(ctx context.Context, opts *sql.TxOptions, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isRetryable(err error) bool {
	code := pqCode(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}
