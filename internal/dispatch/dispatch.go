// Package dispatch runs one API call and checks its status against an expectation.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/httpclient"
	"github.com/Checker-Finance/apitests/internal/metrics"
)

// maxLoggedBody caps how much of a failing response body goes into logs and errors.
const maxLoggedBody = 2048

// Call is one client operation bound to its arguments.
type Call func(ctx context.Context) (*httpclient.Response, error)

// StatusError reports a response whose status differed from the expected one.
type StatusError struct {
	Op       string
	URL      string
	Status   int
	Expected int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request %s failed: %s\nstatus %d, expected %d\n%s", e.Op, e.URL, e.Status, e.Expected, e.Body)
}

// Dispatcher invokes calls exactly once and logs the outcome.
type Dispatcher struct {
	logger *zap.Logger
	calls  atomic.Int64
}

func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// Calls returns how many operations have been dispatched so far.
func (d *Dispatcher) Calls() int64 {
	return d.calls.Load()
}

// Send runs call once. On a status mismatch it returns the response together
// with a *StatusError so callers can still inspect the body.
func (d *Dispatcher) Send(ctx context.Context, op string, expected int, call Call) (*httpclient.Response, error) {
	d.calls.Add(1)

	resp, err := call(ctx)
	if err != nil {
		metrics.IncTransportError(op)
		d.logger.Warn("dispatch.transport_failed",
			zap.String("op", op),
			zap.Error(err))
		return nil, fmt.Errorf("request %s: %w", op, err)
	}

	if resp.StatusCode != expected {
		body := truncate(resp.Text())
		metrics.IncExpectationFailure(op)
		d.logger.Warn("dispatch.expectation_failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.Int("expected", expected),
			zap.String("url", resp.URL),
			zap.String("body", body))
		return resp, &StatusError{
			Op:       op,
			URL:      resp.URL,
			Status:   resp.StatusCode,
			Expected: expected,
			Body:     body,
		}
	}

	d.logger.Info("dispatch.request_successful",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", resp.Elapsed))
	return resp, nil
}

// truncate cuts s to at most maxLoggedBody bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	cut := maxLoggedBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
