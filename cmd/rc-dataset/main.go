// Command rc-dataset creates Rocket.Chat help requests filled with random
// messages, producing conversations for Smarti to analyse.
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

	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/config"
	"github.com/Checker-Finance/apitests/internal/dataset"
	"github.com/Checker-Finance/apitests/internal/dispatch"
	"github.com/Checker-Finance/apitests/internal/metrics"
	"github.com/Checker-Finance/apitests/internal/rate"
	"github.com/Checker-Finance/apitests/internal/rocketchat"
	internalsecrets "github.com/Checker-Finance/apitests/internal/secrets"
	"github.com/Checker-Finance/apitests/pkg/logger"
	"github.com/Checker-Finance/apitests/pkg/secrets"
)

// Version is set at build time
var Version = "dev"

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.LoadDataset(args, stderr)
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
	log.Info("starting rc-dataset",
		zap.String("version", Version),
		zap.String("url", cfg.URL),
		zap.Int("requests", cfg.NumRequests),
		zap.Int("maxMessages", cfg.MaxMessages))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	// --- Credentials ---
	user := auth.FromCredentials(cfg.Username, cfg.Password)
	if cfg.SecretName != "" {
		provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			log.Error("failed to create AWS Secrets Manager provider", zap.Error(err))
			return exitFailed
		}
		resolver := internalsecrets.NewResolver(log, provider, secrets.NewCache[auth.Auth](cfg.SecretCacheTTL))
		if user, err = resolver.Resolve(ctx, cfg.SecretName); err != nil {
			log.Error("failed to load credentials", zap.Error(err))
			return exitFailed
		}
	}

	// --- Rocket.Chat client ---
	var rateMgr *rate.Manager
	if cfg.RPS > 0 {
		rateMgr = rate.NewManager(rate.Config{RequestsPerSecond: cfg.RPS, Burst: 1})
	}
	rc := rocketchat.NewClient(log, cfg.URL, &http.Client{Timeout: cfg.HTTPTimeout}, rateMgr)
	gen := dataset.NewGenerator(log, rc, dispatch.New(log), user)

	stats, err := gen.Run(ctx, cfg.NumRequests, cfg.MaxMessages)
	pushMetrics(cfg, log)
	_, _ = fmt.Fprintf(stdout, "%d help requests, %d messages, %d searchable\n",
		stats.Requests, stats.Messages, stats.Searchable)
	if err != nil {
		log.Error("dataset run failed", zap.Error(err))
		_, _ = fmt.Fprintln(stderr, err)
		if errors.Is(err, rocketchat.ErrCredentialsRequired) {
			return exitConfig
		}
		return exitFailed
	}
	return exitOK
}

func pushMetrics(cfg *config.DatasetConfig, log *zap.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, cfg.PushgatewayURL, cfg.ServiceName, ""); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
}
