// Package store persists recommender allocations and screening-run
// history to Postgres, the "physical storage engine" SPEC_FULL.md's
// domain stack names as needing just enough plumbing to exercise
// sqlx/lib-pq. Grounded on the teacher's
// internal/infrastructure/db/connection.go (pool setup, ping-on-open)
// and internal/persistence/postgres/trades_repo.go (sqlx query style,
// pq error-code handling).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/marketgov/internal/recommend"
	"github.com/sawpanic/marketgov/internal/telemetry"
)

// Config controls the connection pool. Open is a no-op when DSN is
// empty, matching the teacher's "disabled by default" posture for an
// optional persistence layer.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig mirrors the teacher's connection-pool defaults.
func DefaultConfig() Config {
	return Config{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: 30 * time.Minute}
}

// Store wraps the connection pool and exposes the two repositories
// SPEC_FULL.md's domain stack calls for.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and pings it once to fail fast on bad
// DSNs. Returns (nil, nil) when cfg.DSN is empty: persistence is
// optional, and callers should treat a nil *Store as "not configured".
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, nil
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	telemetry.For("store").Info().Msg("connected to postgres")
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecommendationRecord is one persisted recommender run.
type RecommendationRecord struct {
	ID        int64     `db:"id"`
	Strategy  string    `db:"strategy"`
	Budget    float64   `db:"budget"`
	Symbol    string    `db:"symbol"`
	Amount    float64   `db:"amount"`
	Score     float64   `db:"score"`
	CreatedAt time.Time `db:"created_at"`
}

// SaveRecommendation persists every allocation in result as one row
// each, sharing a created_at timestamp. A row that fails with a
// duplicate-key violation (pq code 23505) is skipped, not returned as
// an error; any other insert error aborts the transaction.
func (s *Store) SaveRecommendation(ctx context.Context, result recommend.RecommendResult) error {
	if s == nil || s.db == nil {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recommendation tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recommendations (strategy, budget, symbol, amount, score, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`)
	if err != nil {
		return fmt.Errorf("prepare recommendation insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range result.Allocations {
		score := 0.0
		if a.CompositeScore != nil {
			score = *a.CompositeScore
		}
		if _, err := stmt.ExecContext(ctx, result.Strategy, result.Budget, a.Symbol, a.AllocatedAmount, score); err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				continue // duplicate within the unique window, not an error
			}
			return fmt.Errorf("insert recommendation for %s: %w", a.Symbol, err)
		}
	}

	return tx.Commit()
}

// ListRecommendations returns the most recent persisted allocations,
// newest first.
func (s *Store) ListRecommendations(ctx context.Context, limit int) ([]RecommendationRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	var records []RecommendationRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, strategy, budget, symbol, amount, score, created_at
		FROM recommendations
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	return records, nil
}

// ScreenRunRecord is one persisted screening invocation, kept for
// audit/backtest replay rather than for serving live requests.
type ScreenRunRecord struct {
	ID            int64     `db:"id"`
	Market        string    `db:"market"`
	TotalCount    int       `db:"total_count"`
	ReturnedCount int       `db:"returned_count"`
	Warnings      int       `db:"warnings"`
	CreatedAt     time.Time `db:"created_at"`
}

// SaveScreenRun records the shape of one screening response. Row-level
// results are not persisted; the cache + provider layers are the
// source of truth for what was actually returned.
func (s *Store) SaveScreenRun(ctx context.Context, market string, totalCount, returnedCount, warningCount int) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO screen_runs (market, total_count, returned_count, warnings, created_at)
		VALUES ($1, $2, $3, $4, now())`, market, totalCount, returnedCount, warningCount)
	if err != nil {
		return fmt.Errorf("insert screen run: %w", err)
	}
	return nil
}
