// Command smarti-apitest runs acceptance scenarios against a Smarti server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/config"
	"github.com/Checker-Finance/apitests/internal/dispatch"
	"github.com/Checker-Finance/apitests/internal/metrics"
	"github.com/Checker-Finance/apitests/internal/rate"
	"github.com/Checker-Finance/apitests/internal/report"
	"github.com/Checker-Finance/apitests/internal/scenario"
	internalsecrets "github.com/Checker-Finance/apitests/internal/secrets"
	"github.com/Checker-Finance/apitests/internal/smarti"
	"github.com/Checker-Finance/apitests/pkg/logger"
	"github.com/Checker-Finance/apitests/pkg/secrets"
	"github.com/Checker-Finance/apitests/pkg/utils"
)

// Version is set at build time
var Version = "dev"

// summaryRefreshTimeout bounds the post-run refresh of the summary view.
var summaryRefreshTimeout = 10 * time.Second

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// --- Load configuration ---
	cfg, err := config.LoadSmarti(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitConfig
	}

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	log := logger.L()
	log.Info("starting smarti-apitest",
		zap.String("version", Version),
		zap.String("url", cfg.URL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	// --- Admin credentials ---
	admin, err := loadAdmin(ctx, cfg, log)
	if err != nil {
		log.Error("failed to load admin credentials", zap.Error(err))
		return exitFailed
	}

	// --- Smarti client ---
	var rateMgr *rate.Manager
	if cfg.RPS > 0 {
		rateMgr = rate.NewManager(rate.Config{RequestsPerSecond: cfg.RPS, Burst: 1})
	}
	client := smarti.NewClient(log, cfg.URL, &http.Client{Timeout: cfg.HTTPTimeout}, rateMgr)
	suite, err := scenario.NewSuite(log, client, dispatch.New(log), admin, scenario.Options{
		Channels: cfg.Channels,
		Messages: cfg.Messages,
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return exitConfig
	}

	if cfg.CleanupOnly {
		err := suite.Cleanup(ctx)
		pushMetrics(cfg, "cleanup", log)
		if err != nil {
			log.Error("cleanup failed", zap.Error(err))
			_, _ = fmt.Fprintln(stderr, err)
			return exitFailed
		}
		_, _ = fmt.Fprintln(stdout, "cleanup done")
		return exitOK
	}

	// --- Result sinks ---
	recorder, store, closeSinks := openSinks(ctx, cfg, log)
	defer closeSinks()

	// --- Run ---
	runner := scenario.NewRunner(log, suite, recorder, cfg.URL)
	summary, err := runner.Run(ctx, cfg.Scenarios)
	if errors.Is(err, scenario.ErrUnknownScenario) {
		_, _ = fmt.Fprintln(stderr, err)
		return exitConfig
	}
	pushMetrics(cfg, runner.RunID(), log)
	if store != nil && store.PG != nil {
		// the summary view is advisory; a failed refresh does not fail the run
		_ = refreshSummary(ctx, store.PG, log)
	}
	if summary != nil {
		printSummary(stdout, summary)
	}
	if err != nil {
		log.Error("run aborted", zap.Error(err))
		return exitFailed
	}
	if !summary.OK() {
		return exitFailed
	}
	return exitOK
}

// loadAdmin prefers Secrets Manager when a secret name is configured.
func loadAdmin(ctx context.Context, cfg *config.SmartiConfig, log *zap.Logger) (auth.Auth, error) {
	if cfg.SecretName == "" {
		return auth.FromCredentials(cfg.Username, cfg.Password), nil
	}
	log.Info("loading admin credentials from AWS Secrets Manager", zap.String("secretName", cfg.SecretName))
	provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
	if err != nil {
		return auth.Auth{}, err
	}
	resolver := internalsecrets.NewResolver(log, provider, secrets.NewCache[auth.Auth](cfg.SecretCacheTTL))
	return resolver.Resolve(ctx, cfg.SecretName)
}

// openSinks builds the recorder chain. A sink that cannot be reached is
// skipped with a warning; results always go to the log. The returned store
// is nil unless Redis was reachable.
func openSinks(ctx context.Context, cfg *config.SmartiConfig, log *zap.Logger) (report.Recorder, *report.HybridStore, func()) {
	recorders := report.Multi{report.NewLogRecorder(log)}
	var closers []func()
	var opened *report.HybridStore

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName), nats.Timeout(5*time.Second))
		if err != nil {
			log.Warn("nats unavailable, results not published", zap.Error(err))
		} else if pub, err := report.NewPublisher(nc, cfg.ResultSubject, cfg.ServiceName, log); err != nil {
			log.Warn("jetstream unavailable, results not published", zap.Error(err))
			nc.Close()
		} else {
			recorders = append(recorders, pub)
			closers = append(closers, pub.Close)
		}
	}

	if cfg.RedisAddr != "" {
		log.Info("opening result store",
			zap.String("redis", cfg.RedisAddr),
			zap.String("postgres", utils.MaskDSN(cfg.DatabaseURL)))
		store, err := report.NewHybrid(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.DatabaseURL, report.PGPoolConfig{
			MaxConns:        int32(cfg.PGMaxConns),
			MinConns:        int32(cfg.PGMinConns),
			MaxConnLifetime: cfg.PGMaxConnLifetime,
			MaxConnIdleTime: cfg.PGMaxConnIdleTime,
			HealthCheck:     cfg.PGHealthCheckPeriod,
		}, log)
		if err != nil {
			log.Warn("result store unavailable", zap.Error(err))
		} else {
			recorders = append(recorders, store)
			closers = append(closers, func() { _ = store.Close() })
			opened = store
		}
	}

	return recorders, opened, func() {
		for _, c := range closers {
			c()
		}
	}
}

// refreshSummary runs even after ctx is canceled, but never longer than
// summaryRefreshTimeout.
func refreshSummary(ctx context.Context, db report.DBExecutor, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryRefreshTimeout)
	defer cancel()
	return report.NewSummaryRefresher(log, db).Refresh(ctx)
}

func pushMetrics(cfg *config.SmartiConfig, instance string, log *zap.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, cfg.PushgatewayURL, cfg.ServiceName, instance); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
}

func printSummary(w io.Writer, s *scenario.Summary) {
	for _, r := range s.Results {
		if r.Passed {
			_, _ = fmt.Fprintf(w, "PASS %-24s %4d requests %8dms\n", r.Scenario, r.Steps, r.DurationMs)
		} else {
			_, _ = fmt.Fprintf(w, "FAIL %-24s %4d requests %8dms\n     %s\n", r.Scenario, r.Steps, r.DurationMs, r.Error)
		}
	}
	_, _ = fmt.Fprintf(w, "run %s: %d passed, %d failed\n", s.RunID, s.Passed(), s.Failed())
}
