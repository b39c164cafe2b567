// Package report delivers scenario results to logs, NATS and the result store.
package report

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/metrics"
	"github.com/Checker-Finance/apitests/pkg/model"
)

// Recorder receives every finished scenario.
type Recorder interface {
	Record(ctx context.Context, r model.ScenarioResult) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, r model.ScenarioResult) error

func (f RecorderFunc) Record(ctx context.Context, r model.ScenarioResult) error { return f(ctx, r) }

// Multi fans a result out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, r model.ScenarioResult) error {
	var errs []error
	for _, rec := range m {
		if rec == nil {
			continue
		}
		if err := rec.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogRecorder writes each result as one structured log line.
type LogRecorder struct {
	logger *zap.Logger
}

func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRecorder{logger: logger}
}

func (l *LogRecorder) Record(_ context.Context, r model.ScenarioResult) error {
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.String("scenario", r.Scenario),
		zap.String("outcome", r.Outcome()),
		zap.Int64("steps", r.Steps),
		zap.Int64("duration_ms", r.DurationMs),
	}
	if r.Passed {
		l.logger.Info("report.scenario_passed", fields...)
	} else {
		l.logger.Error("report.scenario_failed", append(fields, zap.String("error", r.Error))...)
	}
	metrics.IncReport("log", true)
	return nil
}
