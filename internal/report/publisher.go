package report

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/metrics"
	"github.com/Checker-Finance/apitests/pkg/model"
)

// DefaultSubject carries scenario result envelopes.
const DefaultSubject = "evt.apitest.result.v1"

// msgPublisher is the part of nats.JetStreamContext the publisher needs.
type msgPublisher interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher emits scenario results as JetStream messages.
type Publisher struct {
	nc      *nats.Conn
	js      msgPublisher
	subject string
	service string
	logger  *zap.Logger
}

// NewPublisher creates a Publisher on an open connection with JetStream enabled.
func NewPublisher(nc *nats.Conn, subject, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	p := newPublisher(js, subject, service, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(js msgPublisher, subject, service string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{js: js, subject: subject, service: service, logger: logger}
}

// Record publishes r wrapped in an envelope.
func (p *Publisher) Record(_ context.Context, r model.ScenarioResult) error {
	env, err := model.NewResultEnvelope(p.subject, p.service, r)
	if err != nil {
		metrics.IncReport("nats", false)
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("report.marshal_failed", zap.String("scenario", r.Scenario), zap.Error(err))
		metrics.IncReport("nats", false)
		return err
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"scenario":       []string{r.Scenario},
			"outcome":        []string{r.Outcome()},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	if err != nil {
		p.logger.Error("report.publish_failed",
			zap.String("subject", p.subject),
			zap.String("scenario", r.Scenario),
			zap.Error(err))
		metrics.IncReport("nats", false)
		return err
	}

	p.logger.Info("report.publish_success",
		zap.String("subject", p.subject),
		zap.String("scenario", r.Scenario),
		zap.Duration("elapsed", time.Since(start)))
	metrics.IncReport("nats", true)
	return nil
}

// Close closes the connection the publisher was built on, if any.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
