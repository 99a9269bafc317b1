// Package storage persists strategy artifact metadata: where a loaded
// plugin's compiled .so lives on disk and the parameters it was last
// started with. It is deliberately thin — no trade/order/signal history,
// no backtest results, no screener output; the Non-goals exclude
// building this host into a full trading platform's data layer.
//
// Grounded on the reference codebase's internal/database/db.go for the
// pgxpool connection-pool shape (MaxConns/MinConns/MaxConnLifetime/
// HealthCheckPeriod); the migrations and table set are new, scoped to
// strategy_artifacts only.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the Postgres connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store wraps the connection pool backing StrategyStorage.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and configures the pool the same way the
// reference codebase does for its own database layer.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse storage dsn: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create storage pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		return nil, fmt.Errorf("ping storage database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// HealthCheck pings the pool.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS strategy_artifacts (
		strategy_id VARCHAR(100) NOT NULL,
		symbol VARCHAR(20) NOT NULL,
		artifact_path TEXT NOT NULL,
		params JSONB,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (strategy_id, symbol)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_strategy_artifacts_strategy_id ON strategy_artifacts(strategy_id)`,
}

// Migrate applies the artifact-metadata schema.
func (s *Store) Migrate(ctx context.Context) error {
	for i, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("storage migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// ArtifactRecord is one strategy's persisted artifact metadata.
type ArtifactRecord struct {
	StrategyID   string
	Symbol       string
	ArtifactPath string
	Params       []byte // raw JSON, opaque to this package
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Upsert records (or replaces) the artifact path and params for a
// strategy:symbol pair, the same tuple PluginSupervisor keys instances by.
func (s *Store) Upsert(ctx context.Context, rec ArtifactRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO strategy_artifacts (strategy_id, symbol, artifact_path, params, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (strategy_id, symbol) DO UPDATE
		SET artifact_path = EXCLUDED.artifact_path,
		    params = EXCLUDED.params,
		    updated_at = NOW()`,
		rec.StrategyID, rec.Symbol, rec.ArtifactPath, rec.Params,
	)
	if err != nil {
		return fmt.Errorf("upsert strategy artifact %s:%s: %w", rec.StrategyID, rec.Symbol, err)
	}
	return nil
}

// Get fetches one strategy's artifact record.
func (s *Store) Get(ctx context.Context, strategyID, symbol string) (ArtifactRecord, error) {
	var rec ArtifactRecord
	rec.StrategyID, rec.Symbol = strategyID, symbol
	row := s.pool.QueryRow(ctx, `
		SELECT artifact_path, params, created_at, updated_at
		FROM strategy_artifacts WHERE strategy_id = $1 AND symbol = $2`,
		strategyID, symbol,
	)
	if err := row.Scan(&rec.ArtifactPath, &rec.Params, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ArtifactRecord{}, fmt.Errorf("get strategy artifact %s:%s: %w", strategyID, symbol, err)
	}
	return rec, nil
}

// List returns every persisted artifact, optionally filtered to one
// strategy id (empty string means no filter).
func (s *Store) List(ctx context.Context, strategyID string) ([]ArtifactRecord, error) {
	query := `SELECT strategy_id, symbol, artifact_path, params, created_at, updated_at FROM strategy_artifacts`

	var (
		rows pgx.Rows
		err  error
	)
	if strategyID != "" {
		rows, err = s.pool.Query(ctx, query+` WHERE strategy_id = $1 ORDER BY strategy_id, symbol`, strategyID)
	} else {
		rows, err = s.pool.Query(ctx, query+` ORDER BY strategy_id, symbol`)
	}
	if err != nil {
		return nil, fmt.Errorf("list strategy artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRecord
	for rows.Next() {
		var rec ArtifactRecord
		if err := rows.Scan(&rec.StrategyID, &rec.Symbol, &rec.ArtifactPath, &rec.Params, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan strategy artifact row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy artifacts: %w", err)
	}
	return out, nil
}

// Delete removes a strategy's artifact record.
func (s *Store) Delete(ctx context.Context, strategyID, symbol string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM strategy_artifacts WHERE strategy_id = $1 AND symbol = $2`, strategyID, symbol)
	if err != nil {
		return fmt.Errorf("delete strategy artifact %s:%s: %w", strategyID, symbol, err)
	}
	return nil
}
