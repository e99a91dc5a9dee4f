package segment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"gitlab.com/rangulvers/wikigraph/internal/store"
)

// Store is the durable key-value table keyed on (start_normalized,
// end_normalized), per §4.2 of the specification.
type Store interface {
	Get(ctx context.Context, startNormalized, endNormalized string) (Segment, bool, errors.E)
	Put(ctx context.Context, seg Segment) errors.E
	BulkPut(ctx context.Context, segs []Segment) errors.E
	NeighborsOut(ctx context.Context, pageNormalized string, limit int) ([]string, errors.E)
	NeighborsIn(ctx context.Context, pageNormalized string, limit int) ([]string, errors.E)
	Prune(ctx context.Context, maxAge time.Duration, maxRows int) errors.E
	Recent(ctx context.Context, limit int) ([]Segment, errors.E)
}

// PostgresStore is the pgx-backed implementation of Store. It supports
// concurrent readers with at most one writer active without starving
// either: writes run in serializable transactions retried on contention via
// store.RetryTransaction; reads use the pool directly.
type PostgresStore struct {
	pool    *pgxpool.Pool
	logger  zerolog.Logger
	metrics *store.Metrics
}

// NewPostgresStore wraps an already-initialized pool (see store.InitPostgres).
func NewPostgresStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger, metrics: store.NewMetrics()}
}

// Metrics exposes the store's retry/operation counters.
func (s *PostgresStore) Metrics() *store.Metrics {
	return s.metrics
}

// Schema is the DDL for the segment table, per §6 of the specification.
const Schema = `
CREATE TABLE IF NOT EXISTS segment (
	id           TEXT PRIMARY KEY,
	start_page   TEXT NOT NULL,
	end_page     TEXT NOT NULL,
	segment_path JSONB NOT NULL,
	hops         INT NOT NULL,
	use_count    INT NOT NULL DEFAULT 1,
	last_used    TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS segment_start_end_idx ON segment (start_page, end_page);
CREATE INDEX IF NOT EXISTS segment_start_idx ON segment (start_page);
CREATE INDEX IF NOT EXISTS segment_end_idx ON segment (end_page);
CREATE INDEX IF NOT EXISTS segment_last_used_idx ON segment (last_used DESC);
`

func (s *PostgresStore) Get(ctx context.Context, startNormalized, endNormalized string) (Segment, bool, errors.E) {
	s.metrics.Inc(store.MetricDatabase)

	var pathJSON []byte
	var seg Segment
	row := s.pool.QueryRow(ctx, `
		UPDATE segment
		SET use_count = use_count + 1, last_used = now()
		WHERE start_page = $1 AND end_page = $2
		RETURNING start_page, end_page, segment_path, hops, use_count, last_used, created_at
	`, startNormalized, endNormalized)

	err := row.Scan(&seg.StartNormalized, &seg.EndNormalized, &pathJSON, &seg.Hops, &seg.UseCount, &seg.LastUsed, &seg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Segment{}, false, nil
	}
	if err != nil {
		return Segment{}, false, store.WithPgxError(err)
	}
	if err := json.Unmarshal(pathJSON, &seg.Path); err != nil {
		return Segment{}, false, errors.WithStack(err)
	}
	return seg, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, seg Segment) errors.E {
	return s.BulkPut(ctx, []Segment{seg})
}

func (s *PostgresStore) BulkPut(ctx context.Context, segs []Segment) errors.E {
	if len(segs) == 0 {
		return nil
	}
	return store.RetryTransaction(ctx, s.pool, s.metrics, func(ctx context.Context, tx pgx.Tx) errors.E {
		for _, seg := range segs {
			pathJSON, err := json.Marshal(seg.Path)
			if err != nil {
				return errors.WithStack(err)
			}
			id := newSegmentID()
			_, err = tx.Exec(ctx, `
				INSERT INTO segment (id, start_page, end_page, segment_path, hops, use_count, last_used, created_at)
				VALUES ($1, $2, $3, $4, $5, 1, now(), now())
				ON CONFLICT (start_page, end_page) DO UPDATE
				SET use_count = segment.use_count + 1, last_used = now()
			`, id, seg.StartNormalized, seg.EndNormalized, pathJSON, seg.Hops)
			if err != nil {
				return store.WithPgxError(err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) NeighborsOut(ctx context.Context, pageNormalized string, limit int) ([]string, errors.E) {
	return s.neighbors(ctx, "end_page", "start_page", pageNormalized, limit)
}

func (s *PostgresStore) NeighborsIn(ctx context.Context, pageNormalized string, limit int) ([]string, errors.E) {
	return s.neighbors(ctx, "start_page", "end_page", pageNormalized, limit)
}

func (s *PostgresStore) neighbors(ctx context.Context, whereCol, selectCol, page string, limit int) ([]string, errors.E) {
	s.metrics.Inc(store.MetricDatabase)
	if limit <= 0 {
		limit = 50
	}
	//nolint:gosec // whereCol/selectCol are compile-time constants from this file, never user input.
	query := `SELECT ` + selectCol + ` FROM segment WHERE ` + whereCol + ` = $1 ORDER BY use_count DESC, last_used DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, page, limit)
	if err != nil {
		return nil, store.WithPgxError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, store.WithPgxError(err)
	}
	return out, nil
}

// Prune deletes entries older than maxAge, then retains the maxRows
// most-recently-used rows.
func (s *PostgresStore) Prune(ctx context.Context, maxAge time.Duration, maxRows int) errors.E {
	return store.RetryTransaction(ctx, s.pool, s.metrics, func(ctx context.Context, tx pgx.Tx) errors.E {
		_, err := tx.Exec(ctx, `DELETE FROM segment WHERE last_used < now() - $1::interval`, maxAge.String())
		if err != nil {
			return store.WithPgxError(err)
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM segment WHERE id NOT IN (
				SELECT id FROM segment ORDER BY last_used DESC LIMIT $1
			)
		`, maxRows)
		if err != nil {
			return store.WithPgxError(err)
		}
		return nil
	})
}

// Recent returns the limit most-recently-used segments, for cache warming.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Segment, errors.E) {
	s.metrics.Inc(store.MetricDatabase)
	rows, err := s.pool.Query(ctx, `
		SELECT start_page, end_page, segment_path, hops, use_count, last_used, created_at
		FROM segment ORDER BY last_used DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, store.WithPgxError(err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var seg Segment
		var pathJSON []byte
		if err := rows.Scan(&seg.StartNormalized, &seg.EndNormalized, &pathJSON, &seg.Hops, &seg.UseCount, &seg.LastUsed, &seg.CreatedAt); err != nil {
			return nil, errors.WithStack(err)
		}
		if err := json.Unmarshal(pathJSON, &seg.Path); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, store.WithPgxError(err)
	}
	return out, nil
}
