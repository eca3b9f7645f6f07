package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/mamashield/internal/lang"
	"github.com/ent0n29/mamashield/internal/reliability"
)

// connectAttempts covers a database that is still starting when the
// service boots.
const connectAttempts = 3

// PostgresStore persists users in PostgreSQL with history as JSONB.
type PostgresStore struct {
	pool        *pgxpool.Pool
	defaultLang lang.Language
}

func NewPostgresStore(ctx context.Context, databaseURL string, defaultLang lang.Language) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pingWithGrace(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	if defaultLang == "" {
		defaultLang = lang.English
	}
	return &PostgresStore{pool: pool, defaultLang: defaultLang}, nil
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

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			phone_hash TEXT PRIMARY KEY,
			language TEXT NOT NULL DEFAULT 'en',
			due_date DATE,
			pregnancy_weeks INTEGER,
			tea_farm_worker BOOLEAN NOT NULL DEFAULT FALSE,
			interaction_count INTEGER NOT NULL DEFAULT 0,
			last_interaction TIMESTAMPTZ NOT NULL DEFAULT now(),
			history JSONB NOT NULL DEFAULT '[]'::jsonb
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_last_interaction ON users (last_interaction);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, phoneHash string) (User, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (phone_hash, language) VALUES ($1, $2)
		 ON CONFLICT (phone_hash) DO NOTHING`,
		phoneHash, string(s.defaultLang),
	)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}

	var (
		u        User
		language string
	)
	err = s.pool.QueryRow(ctx,
		`SELECT phone_hash, language, due_date, pregnancy_weeks, tea_farm_worker,
		        interaction_count, last_interaction, history
		 FROM users WHERE phone_hash=$1`,
		phoneHash,
	).Scan(&u.PhoneHash, &language, &u.DueDate, &u.PregnancyWeeks, &u.TeaFarmWorker,
		&u.InteractionCount, &u.LastInteraction, &u.History)
	if err != nil {
		return User{}, fmt.Errorf("load user: %w", err)
	}
	u.Language = lang.ParseOrDefault(language, s.defaultLang)
	return u, nil
}

func (s *PostgresStore) Update(ctx context.Context, phoneHash string, patch Patch) error {
	sets := make([]string, 0, 4)
	args := []any{phoneHash}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Language != nil {
		add("language", string(*patch.Language))
	}
	if patch.DueDate != nil {
		add("due_date", *patch.DueDate)
	}
	if patch.PregnancyWeeks != nil {
		add("pregnancy_weeks", *patch.PregnancyWeeks)
	}
	if patch.TeaFarmWorker != nil {
		add("tea_farm_worker", *patch.TeaFarmWorker)
	}
	if len(sets) == 0 {
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE phone_hash=$1",
		args...,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IncrementInteractions(ctx context.Context, phoneHash string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`UPDATE users SET interaction_count = interaction_count + 1
		 WHERE phone_hash=$1 RETURNING interaction_count`,
		phoneHash,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment interactions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, phoneHash string, role Role, content string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin history append: %w", err)
	}
	defer tx.Rollback(ctx)

	var history []HistoryEntry
	err = tx.QueryRow(ctx,
		`SELECT history FROM users WHERE phone_hash=$1 FOR UPDATE`,
		phoneHash,
	).Scan(&history)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock history: %w", err)
	}

	history = append(history, HistoryEntry{Role: role, Content: content})
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET history=$2, last_interaction=$3 WHERE phone_hash=$1`,
		phoneHash, history, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
