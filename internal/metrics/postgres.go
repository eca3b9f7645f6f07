package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/mamashield/internal/reliability"
)

const connectAttempts = 3

// PostgresStore persists events in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pingWithGrace(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := initEventSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func pingWithGrace(ctx context.Context, pool *pgxpool.Pool) error {
	var err error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := reliability.Sleep(ctx, reliability.Backoff(attempt-1, 500*time.Millisecond, 2*time.Second)); sleepErr != nil {
				return sleepErr
			}
		}
		if err = pool.Ping(ctx); err == nil {
			return nil
		}
	}
	return err
}

func initEventSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metric_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 1,
			details JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_metric_events_created ON metric_events (created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_metric_events_type ON metric_events (event_type);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init event schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Event) error {
	normalize(&e)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO metric_events (id, event_type, count, details, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Type, e.Count, e.Details, e.At,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) Since(ctx context.Context, from time.Time) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_type, count, details, created_at
		 FROM metric_events WHERE created_at >= $1 ORDER BY created_at`,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Count, &e.Details, &e.At); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
