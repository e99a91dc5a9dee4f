package store

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"gitlab.com/tozd/go/errors"
)

const (
	busyRetries  = 3
	busyBaseWait = 100 * time.Millisecond
)

// ErrMaxRetriesReached is returned when a writer keeps losing to contention
// after exhausting its retry budget.
var ErrMaxRetriesReached = errors.Base("max retries reached")

// RetryTransaction runs fn inside a serializable transaction, retrying with
// bounded exponential backoff (base 0.1s, 3 attempts) on serialization
// failures and deadlocks, the "busy" errors the segment store's writers must
// tolerate without starving concurrent readers.
func RetryTransaction(ctx context.Context, dbpool *pgxpool.Pool, metrics *Metrics, fn func(ctx context.Context, tx pgx.Tx) errors.E) errors.E {
	var lastErr errors.E

	for attempt := 0; attempt < busyRetries; attempt++ {
		if ctx.Err() != nil {
			return errors.WithStack(ctx.Err())
		}
		if attempt > 0 {
			if metrics != nil {
				metrics.Inc(MetricDatabaseRetries)
			}
			wait := busyBaseWait * time.Duration(1<<uint(attempt-1)) //nolint:gosec
			jitter := time.Duration(rand.Int63n(int64(wait) / 2)) //nolint:gosec
			select {
			case <-ctx.Done():
				return errors.WithStack(ctx.Err())
			case <-time.After(wait + jitter):
			}
		}
		if metrics != nil {
			metrics.Inc(MetricDatabase)
		}

		errE := runSerializable(ctx, dbpool, fn)
		if errE == nil {
			return nil
		}
		lastErr = errE

		if errors.Is(errE, context.Canceled) || errors.Is(errE, context.DeadlineExceeded) {
			return errE
		}
		if !isBusy(errE) {
			return errE
		}
	}

	return errors.WrapWith(lastErr, ErrMaxRetriesReached)
}

func runSerializable(ctx context.Context, dbpool *pgxpool.Pool, fn func(ctx context.Context, tx pgx.Tx) errors.E) (errE errors.E) { //nolint:nonamedreturns
	tx, err := dbpool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return WithPgxError(err)
	}
	defer func() {
		rollbackErr := tx.Rollback(ctx)
		if rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			errE = errors.Join(errE, rollbackErr)
		}
	}()

	errE = fn(ctx, tx)
	if errE != nil {
		return errE
	}

	err = tx.Commit(ctx)
	if err != nil && (errors.Is(err, pgx.ErrTxClosed) || errors.Is(err, pgx.ErrTxCommitRollback)) {
		return nil
	}
	return WithPgxError(err)
}

func isBusy(errE error) bool {
	var pgError *pgconn.PgError
	if errors.As(errE, &pgError) {
		switch pgError.Code {
		case ErrorCodeSerializationFailure, ErrorCodeDeadlockDetected:
			return true
		}
	}
	return false
}
