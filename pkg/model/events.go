package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScenarioResultEvent is the event type of a finished scenario.
const ScenarioResultEvent = "apitest.scenario.result"

// ScenarioResult is the outcome of one scenario in one run.
type ScenarioResult struct {
	RunID      string    `json:"run_id"`
	Scenario   string    `json:"scenario"`
	Target     string    `json:"target"`
	Passed     bool      `json:"passed"`
	Error      string    `json:"error,omitempty"`
	Steps      int64     `json:"steps"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Outcome renders Passed as "passed" or "failed".
func (r ScenarioResult) Outcome() string {
	if r.Passed {
		return "passed"
	}
	return "failed"
}

// Envelope wraps an event payload with routing metadata.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID string          `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// NewResultEnvelope wraps r for topic. The run id doubles as correlation id.
func NewResultEnvelope(topic, source string, r ScenarioResult) (*Envelope, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: r.RunID,
		Topic:         topic,
		EventType:     ScenarioResultEvent,
		Version:       "1.0.0",
		Source:        source,
		Timestamp:     time.Now().UTC(),
		Payload:       data,
	}, nil
}
