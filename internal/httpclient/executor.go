package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/metrics"
	"github.com/Checker-Finance/apitests/internal/rate"
)

// RequestIDHeader correlates a logged request with server-side logs.
const RequestIDHeader = "X-Request-ID"

// Response is the raw outcome of one round-trip. The body is fully read.
type Response struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
}

// JSON decodes the body into out.
func (r *Response) JSON(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", r.Method, r.URL, err)
	}
	return nil
}

// Text returns the body as a trimmed string.
func (r *Response) Text() string {
	return strings.TrimSpace(string(r.Body))
}

// NewRequest builds a JSON request. A nil body sends no payload; query may be nil.
func NewRequest(ctx context.Context, method, rawURL string, body any, query url.Values) (*http.Request, error) {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, rawURL, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Executor sends requests exactly once and hands back whatever came back.
// Status codes are not interpreted here; that is the dispatcher's job.
type Executor struct {
	logger  *zap.Logger
	rateMgr *rate.Manager
	http    *http.Client
	api     string
}

// New creates an Executor. rateMgr may be nil for unpaced execution.
// api labels logs and metrics ("smarti", "rocketchat").
func New(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client, api string) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Executor{
		logger:  logger,
		rateMgr: rateMgr,
		http:    httpClient,
		api:     api,
	}
}

// Do performs req once. A non-nil error means no response was received.
func (e *Executor) Do(ctx context.Context, req *http.Request) (*Response, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, e.api); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}

	start := time.Now()
	resp, err := e.http.Do(req)
	if err != nil {
		e.logger.Warn(e.api+".http_failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%s %s %s: %w", e.api, req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: read body: %w", e.api, req.Method, req.URL.Path, err)
	}
	elapsed := time.Since(start)

	metrics.IncAPIRequest(e.api, req.Method, resp.StatusCode)
	metrics.ObserveDuration(metrics.APIRequestDuration, start, e.api, req.Method)

	e.logger.Debug(e.api+".http_done",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("request_id", req.Header.Get(RequestIDHeader)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))

	return &Response{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Elapsed:    elapsed,
	}, nil
}
