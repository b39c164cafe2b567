package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// APIRequestsTotal tracks outbound calls to the APIs under test.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apitest_requests_total",
			Help: "Total number of API requests made (by api, method, and status).",
		},
		[]string{"api", "method", "status"},
	)

	// APIRequestDuration measures the round-trip time of outbound calls.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apitest_request_duration_seconds",
			Help:    "Duration of API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"api", "method"},
	)

	// ExpectationFailures counts dispatched operations whose status differed from the expected one.
	ExpectationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apitest_expectation_failures_total",
			Help: "Number of operations that returned an unexpected status code.",
		},
		[]string{"operation"},
	)

	// TransportErrors counts operations that never got a response.
	TransportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apitest_transport_errors_total",
			Help: "Number of operations that failed before a response was received.",
		},
		[]string{"operation"},
	)

	// ScenarioResults counts finished scenarios by outcome.
	ScenarioResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apitest_scenarios_total",
			Help: "Number of scenarios run (by scenario and outcome).",
		},
		[]string{"scenario", "outcome"},
	)

	// ReportsTotal counts result deliveries per sink.
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apitest_reports_total",
			Help: "Number of scenario results delivered to a report sink (by sink and outcome).",
		},
		[]string{"sink", "outcome"},
	)

	// ScenarioDuration measures scenario wall time including setup cleanup.
	ScenarioDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apitest_scenario_duration_seconds",
			Help:    "Duration of scenarios in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"scenario"},
	)
)

// IncAPIRequest increments the request counter.
func IncAPIRequest(api, method string, status int) {
	APIRequestsTotal.WithLabelValues(api, method, strconv.Itoa(status)).Inc()
}

// IncExpectationFailure increments the mismatch counter for op.
func IncExpectationFailure(op string) {
	ExpectationFailures.WithLabelValues(op).Inc()
}

// IncTransportError increments the transport error counter for op.
func IncTransportError(op string) {
	TransportErrors.WithLabelValues(op).Inc()
}

// IncScenario records one finished scenario.
func IncScenario(scenario string, passed bool) {
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	ScenarioResults.WithLabelValues(scenario, outcome).Inc()
}

// IncReport records one delivery attempt to a report sink.
func IncReport(sink string, ok bool) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	ReportsTotal.WithLabelValues(sink, outcome).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}

// Push sends everything in the default registry to a Prometheus Pushgateway.
// Test runs are short-lived batch jobs, so they push instead of being scraped.
func Push(ctx context.Context, gatewayURL, job, instance string) error {
	p := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
