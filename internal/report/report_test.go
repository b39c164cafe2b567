package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Checker-Finance/apitests/pkg/model"
)

func sampleResult(passed bool) model.ScenarioResult {
	r := model.ScenarioResult{
		RunID:      "run-1",
		Scenario:   "full",
		Target:     "http://localhost:8080/",
		Passed:     passed,
		Steps:      42,
		StartedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		DurationMs: 830,
	}
	if !passed {
		r.Error = "request postClient failed"
	}
	return r
}

// ─── publisher ───

type mockJetStream struct {
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream"}, nil
}

func TestPublisher_Record(t *testing.T) {
	js := &mockJetStream{}
	p := newPublisher(js, "", "smarti-apitest", zap.NewNop())

	require.NoError(t, p.Record(context.Background(), sampleResult(false)))
	require.Len(t, js.published, 1)

	msg := js.published[0]
	assert.Equal(t, DefaultSubject, msg.Subject)
	assert.Equal(t, model.ScenarioResultEvent, msg.Header.Get("event_type"))
	assert.Equal(t, "run-1", msg.Header.Get("correlation_id"))
	assert.Equal(t, "failed", msg.Header.Get("outcome"))
	assert.Equal(t, "full", msg.Header.Get("scenario"))

	var env model.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	var got model.ScenarioResult
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, sampleResult(false), got)
}

func TestPublisher_RecordError(t *testing.T) {
	js := &mockJetStream{fail: true}
	p := newPublisher(js, "custom.subject", "svc", nil)

	err := p.Record(context.Background(), sampleResult(true))
	require.Error(t, err)
	assert.Empty(t, js.published)
}

func TestPublisher_CloseWhileReconnecting(t *testing.T) {
	// nothing listens on port 1, so the connection starts out reconnecting
	nc, err := nats.Connect("nats://127.0.0.1:1",
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(time.Hour),
		nats.Timeout(100*time.Millisecond))
	require.NoError(t, err)
	require.False(t, nc.IsConnected())

	p := newPublisher(&mockJetStream{}, "", "svc", nil)
	p.nc = nc
	p.Close()
	assert.True(t, nc.IsClosed())
}

func TestPublisher_CloseWithoutConn(t *testing.T) {
	p := newPublisher(&mockJetStream{}, "", "svc", nil)
	assert.NotPanics(t, p.Close)
}

// ─── hybrid store ───

func newTestStore(t *testing.T) (*HybridStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return &HybridStore{redis: rdb, logger: zap.NewNop()}, mr
}

func TestHybridStore_RecordAndLatest(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	r := sampleResult(true)
	require.NoError(t, store.Record(ctx, r))

	got, err := store.Latest(ctx, r.Target, r.Scenario)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r, *got)

	ttl := mr.TTL(latestKey(r.Target, r.Scenario))
	assert.Equal(t, LatestTTL, ttl)
}

func TestHybridStore_LatestMissing(t *testing.T) {
	store, _ := newTestStore(t)
	got, err := store.Latest(context.Background(), "nowhere", "none")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHybridStore_RecordLogsRegression(t *testing.T) {
	store, _ := newTestStore(t)
	core, logs := observer.New(zapcore.WarnLevel)
	store.logger = zap.New(core)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, sampleResult(true)))
	assert.Zero(t, logs.FilterMessage("report.regression").Len())

	failed := sampleResult(false)
	failed.RunID = "run-2"
	require.NoError(t, store.Record(ctx, failed))

	entries := logs.FilterMessage("report.regression").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].ContextMap()["previousRun"])

	// failing again is not a new regression
	failed.RunID = "run-3"
	require.NoError(t, store.Record(ctx, failed))
	assert.Equal(t, 1, logs.FilterMessage("report.regression").Len())
}

func TestHybridStore_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	store := &HybridStore{redis: redis.NewClient(&redis.Options{Addr: mr.Addr()}), logger: zap.NewNop()}

	// Close miniredis to simulate failure
	mr.Close()

	err = store.Record(context.Background(), sampleResult(true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache result")

	err = store.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestHybridStore_HealthAndClose(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.HealthCheck(context.Background()))
	require.NoError(t, store.Close())

	assert.Error(t, (&HybridStore{}).HealthCheck(context.Background()))
	assert.NoError(t, (&HybridStore{}).Close())
}

func TestNewHybrid_Unreachable(t *testing.T) {
	_, err := NewHybrid(context.Background(), "127.0.0.1:1", 0, "", PGPoolConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestNewHybrid_RedisOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewHybrid(context.Background(), mr.Addr(), 0, "", PGPoolConfig{}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	assert.Nil(t, store.PG)
}

// ─── log and fan-out ───

func TestLogRecorder(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rec := NewLogRecorder(zap.New(core))

	require.NoError(t, rec.Record(context.Background(), sampleResult(true)))
	require.NoError(t, rec.Record(context.Background(), sampleResult(false)))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "report.scenario_passed", logs.All()[0].Message)
	failed := logs.All()[1]
	assert.Equal(t, "report.scenario_failed", failed.Message)
	assert.Equal(t, zapcore.ErrorLevel, failed.Level)
	assert.Equal(t, "request postClient failed", failed.ContextMap()["error"])
}

func TestMulti_JoinsErrors(t *testing.T) {
	var seen []string
	ok := RecorderFunc(func(_ context.Context, r model.ScenarioResult) error {
		seen = append(seen, "ok:"+r.Scenario)
		return nil
	})
	bad := RecorderFunc(func(context.Context, model.ScenarioResult) error {
		return errors.New("sink down")
	})

	err := Multi{ok, nil, bad, ok}.Record(context.Background(), sampleResult(true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Equal(t, []string{"ok:full", "ok:full"}, seen)

	assert.NoError(t, Multi{}.Record(context.Background(), sampleResult(true)))
}
