package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/metrics"
	"github.com/Checker-Finance/apitests/internal/report"
	"github.com/Checker-Finance/apitests/pkg/model"
)

// Summary collects the results of one run.
type Summary struct {
	RunID   string
	Results []model.ScenarioResult
}

func (s *Summary) Passed() int {
	n := 0
	for _, r := range s.Results {
		if r.Passed {
			n++
		}
	}
	return n
}

func (s *Summary) Failed() int { return len(s.Results) - s.Passed() }

// OK reports whether every scenario passed.
func (s *Summary) OK() bool { return s.Failed() == 0 }

// Runner executes scenarios one after another, each between two cleanups.
type Runner struct {
	logger   *zap.Logger
	suite    *Suite
	recorder report.Recorder
	target   string
	runID    string
}

// NewRunner returns a runner reporting to recorder; target names the Smarti instance.
func NewRunner(logger *zap.Logger, suite *Suite, recorder report.Recorder, target string) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		logger:   logger,
		suite:    suite,
		recorder: recorder,
		target:   target,
		runID:    uuid.NewString(),
	}
}

func (r *Runner) RunID() string { return r.runID }

// Run executes the named scenarios, or DefaultNames when names is empty.
// Unknown names fail the run before anything is sent. Scenario failures are
// reported in the summary, not as an error.
func (r *Runner) Run(ctx context.Context, names []string) (*Summary, error) {
	if len(names) == 0 {
		names = DefaultNames()
	}
	selected := make([]Scenario, 0, len(names))
	for _, name := range names {
		sc, err := r.suite.Lookup(name)
		if err != nil {
			return nil, err
		}
		selected = append(selected, sc)
	}

	r.logger.Info("runner.started",
		zap.String("run_id", r.runID),
		zap.String("target", r.target),
		zap.Strings("scenarios", names))

	summary := &Summary{RunID: r.runID}
	for _, sc := range selected {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Results = append(summary.Results, r.runOne(ctx, sc))
	}

	r.logger.Info("runner.finished",
		zap.String("run_id", r.runID),
		zap.Int("passed", summary.Passed()),
		zap.Int("failed", summary.Failed()))
	return summary, nil
}

func (r *Runner) runOne(ctx context.Context, sc Scenario) model.ScenarioResult {
	start := time.Now()
	before := r.suite.disp.Calls()
	log := r.logger.With(zap.String("scenario", sc.Name), zap.String("run_id", r.runID))
	log.Info("runner.scenario_started")

	err := r.suite.Cleanup(ctx)
	if err != nil {
		err = fmt.Errorf("setup cleanup: %w", err)
	} else {
		err = sc.Run(ctx)
	}
	if cerr := r.suite.Cleanup(ctx); cerr != nil {
		if err == nil {
			err = fmt.Errorf("teardown cleanup: %w", cerr)
		} else {
			log.Warn("runner.teardown_failed", zap.Error(cerr))
		}
	}

	result := model.ScenarioResult{
		RunID:      r.runID,
		Scenario:   sc.Name,
		Target:     r.target,
		Passed:     err == nil,
		Steps:      r.suite.disp.Calls() - before,
		StartedAt:  start.UTC(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}

	metrics.IncScenario(sc.Name, result.Passed)
	metrics.ObserveDuration(metrics.ScenarioDuration, start, sc.Name)

	if r.recorder != nil {
		if rerr := r.recorder.Record(ctx, result); rerr != nil {
			log.Warn("runner.report_failed", zap.Error(rerr))
		}
	}
	return result
}
