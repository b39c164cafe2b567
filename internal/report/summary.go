package report

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/metrics"
)

const refreshSummarySQL = `REFRESH MATERIALIZED VIEW apitest.scenario_summary`

// DBExecutor is the subset of pgxpool.Pool the refresher needs.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SummaryRefresher recomputes the per-scenario pass rates after a run.
type SummaryRefresher struct {
	logger *zap.Logger
	db     DBExecutor
}

func NewSummaryRefresher(logger *zap.Logger, db DBExecutor) *SummaryRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryRefresher{logger: logger, db: db}
}

// Refresh rebuilds apitest.scenario_summary from the run history.
func (r *SummaryRefresher) Refresh(ctx context.Context) error {
	start := time.Now()
	if _, err := r.db.Exec(ctx, refreshSummarySQL); err != nil {
		metrics.IncReport("summary", false)
		r.logger.Error("summary_refresher.refresh_failed", zap.Error(err))
		return fmt.Errorf("refresh scenario summary: %w", err)
	}
	metrics.IncReport("summary", true)
	r.logger.Info("summary_refresher.success", zap.Duration("duration", time.Since(start)))
	return nil
}
