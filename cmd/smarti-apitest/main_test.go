package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/smartitest"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"NATS_URL", "REDIS_ADDR", "DATABASE_URL", "PUSHGATEWAY_URL", "SMARTI_SECRET_NAME", "SMARTI_SCENARIOS", "SMARTI_CLEANUP_ONLY", "LOG_LEVEL", "SMARTI_USERNAME", "SMARTI_PASSWORD", "RUN_TIMEOUT"} {
		t.Setenv(key, "")
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_ScenariosPass(t *testing.T) {
	isolateEnv(t)
	srv := smartitest.New(t, "admin", "secret")

	code, out, _ := runCLI(t, "--url", srv.URL, "--username", "admin", "--password", "secret",
		"--scenario", "clients,token-usage")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "PASS clients")
	assert.Contains(t, out, "PASS token-usage")
	assert.Contains(t, out, "2 passed, 0 failed")
	assert.Empty(t, srv.ClientIDs())
}

func TestRun_ScenarioFails(t *testing.T) {
	isolateEnv(t)
	srv := smartitest.New(t, "admin", "secret")
	srv.FailOnce("POST", "/client", 500)

	code, out, _ := runCLI(t, "--url", srv.URL, "--username", "admin", "--password", "secret", "--scenario", "tokens")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, out, "FAIL tokens")
	assert.Contains(t, out, "0 passed, 1 failed")
}

func TestRun_WrongPasswordFails(t *testing.T) {
	isolateEnv(t)
	srv := smartitest.New(t, "admin", "secret")

	code, out, _ := runCLI(t, "--url", srv.URL, "--password", "nope", "--scenario", "clients")
	assert.Equal(t, exitFailed, code)
	assert.Contains(t, out, "FAIL clients")
}

func TestRun_CleanupOnly(t *testing.T) {
	isolateEnv(t)
	srv := smartitest.New(t, "admin", "secret")

	code, out, _ := runCLI(t, "--url", srv.URL, "--password", "secret", "--cleanup-only")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "cleanup done")
	assert.Equal(t, []string{"admin"}, srv.Logins())
}

func TestRun_ConfigErrors(t *testing.T) {
	isolateEnv(t)
	srv := smartitest.New(t, "admin", "secret")

	code, _, errOut := runCLI(t, "--loglevel", "chatty")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, errOut, "invalid log level")

	code, _, errOut = runCLI(t, "--url", srv.URL, "--password", "secret", "--scenario", "bogus")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, errOut, "unknown scenario")
	assert.Empty(t, srv.ClientIDs())

	code, _, _ = runCLI(t, "--no-such-flag")
	assert.Equal(t, exitConfig, code)

	code, _, _ = runCLI(t, "-h")
	assert.Equal(t, exitOK, code)
}

func TestRun_RecordsLatestInRedis(t *testing.T) {
	isolateEnv(t)
	srv := smartitest.New(t, "admin", "secret")
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())

	code, _, _ := runCLI(t, "--url", srv.URL, "--password", "secret", "--scenario", "clients")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, []string{"apitest:latest:" + srv.URL + "/:clients"}, mr.Keys())
}

func TestRun_UnreachableRedisIsSkipped(t *testing.T) {
	isolateEnv(t)
	srv := smartitest.New(t, "admin", "secret")
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")

	code, out, _ := runCLI(t, "--url", srv.URL, "--password", "secret", "--scenario", "clients")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "PASS clients")
}

// ─── summary refresh ───

type hangingDB struct{}

func (hangingDB) Exec(ctx context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	<-ctx.Done()
	return pgconn.CommandTag{}, ctx.Err()
}

func TestRefreshSummary_Deadline(t *testing.T) {
	old := summaryRefreshTimeout
	summaryRefreshTimeout = 50 * time.Millisecond
	t.Cleanup(func() { summaryRefreshTimeout = old })

	// a canceled run context still gets its own bounded refresh
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := refreshSummary(ctx, hangingDB{}, zap.NewNop())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
