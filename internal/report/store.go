package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/metrics"
	"github.com/Checker-Finance/apitests/pkg/model"
)

// LatestTTL bounds how long the latest result per scenario stays in Redis.
const LatestTTL = 7 * 24 * time.Hour

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS apitest;
CREATE TABLE IF NOT EXISTS apitest.scenario_run (
	run_id      TEXT        NOT NULL,
	scenario    TEXT        NOT NULL,
	target      TEXT        NOT NULL,
	passed      BOOLEAN     NOT NULL,
	error       TEXT        NOT NULL DEFAULT '',
	steps       BIGINT      NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT      NOT NULL,
	PRIMARY KEY (run_id, scenario)
);
CREATE MATERIALIZED VIEW IF NOT EXISTS apitest.scenario_summary AS
SELECT target,
       scenario,
       count(*)                          AS runs,
       count(*) FILTER (WHERE passed)    AS passed,
       max(started_at)                   AS last_run,
       avg(duration_ms)::BIGINT          AS avg_duration_ms
FROM apitest.scenario_run
GROUP BY target, scenario;`

// PGPoolConfig overrides pgxpool defaults when set.
type PGPoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	HealthCheck     time.Duration
}

// HybridStore keeps the latest result per scenario in Redis and the full
// history in Postgres. Postgres is optional.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

// NewHybrid connects to Redis and, when pgURL is set, to Postgres.
func NewHybrid(ctx context.Context, redisAddr string, redisDB int, pgURL string, pgCfg PGPoolConfig, logger *zap.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	store := &HybridStore{
		redis:  redis.NewClient(&redis.Options{Addr: redisAddr, DB: redisDB}),
		logger: logger,
	}

	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgCfg.MaxConns > 0 {
			cfg.MaxConns = pgCfg.MaxConns
		}
		if pgCfg.MinConns > 0 {
			cfg.MinConns = pgCfg.MinConns
		}
		if pgCfg.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgCfg.MaxConnLifetime
		}
		if pgCfg.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgCfg.MaxConnIdleTime
		}
		if pgCfg.HealthCheck > 0 {
			cfg.HealthCheckPeriod = pgCfg.HealthCheck
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store.PG = pool
	}

	if err := store.HealthCheck(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	if store.PG != nil {
		if _, err := store.PG.Exec(ctx, schemaSQL); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("create result schema: %w", err)
		}
	}
	return store, nil
}

func latestKey(target, scenario string) string {
	return fmt.Sprintf("apitest:latest:%s:%s", target, scenario)
}

// Record caches r as the latest result and appends it to the history table.
// A scenario that passed last time and fails now is logged as a regression.
func (s *HybridStore) Record(ctx context.Context, r model.ScenarioResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if prev, err := s.Latest(ctx, r.Target, r.Scenario); err != nil {
		s.logger.Debug("report.redis.latest_failed", zap.String("scenario", r.Scenario), zap.Error(err))
	} else if prev != nil && prev.Passed && !r.Passed {
		s.logger.Warn("report.regression",
			zap.String("scenario", r.Scenario),
			zap.String("target", r.Target),
			zap.String("previousRun", prev.RunID),
			zap.String("error", r.Error))
	}
	if err := s.redis.Set(ctx, latestKey(r.Target, r.Scenario), data, LatestTTL).Err(); err != nil {
		s.logger.Error("report.redis.set_failed", zap.String("scenario", r.Scenario), zap.Error(err))
		metrics.IncReport("redis", false)
		return fmt.Errorf("cache result: %w", err)
	}
	metrics.IncReport("redis", true)

	if s.PG == nil {
		return nil
	}
	_, err = s.PG.Exec(ctx, `
		INSERT INTO apitest.scenario_run (
			run_id, scenario, target, passed, error, steps, started_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, scenario) DO UPDATE SET
			passed = EXCLUDED.passed,
			error = EXCLUDED.error,
			steps = EXCLUDED.steps,
			duration_ms = EXCLUDED.duration_ms;
	`, r.RunID, r.Scenario, r.Target, r.Passed, r.Error, r.Steps, r.StartedAt, r.DurationMs)
	if err != nil {
		s.logger.Error("report.pg.insert_failed", zap.String("scenario", r.Scenario), zap.Error(err))
		metrics.IncReport("postgres", false)
		return fmt.Errorf("store result: %w", err)
	}
	metrics.IncReport("postgres", true)
	return nil
}

// Latest returns the cached result, or nil when none is cached.
func (s *HybridStore) Latest(ctx context.Context, target, scenario string) (*model.ScenarioResult, error) {
	data, err := s.redis.Get(ctx, latestKey(target, scenario)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var r model.ScenarioResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// HealthCheck pings Redis and, when configured, Postgres.
func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
