package provider

import (
	"encoding/json"
	"errors"
	"io"
	"time"
)

// The voice provider executes calls asynchronously and posts one JSON
// envelope per lifecycle event to our webhook endpoint:
//
//	{"message": {"type": "end-of-call-report", "call": {"id": "..."}, ...}}
//
// Keep this file adapter-only: wire shapes and defensive decoding.
// Business logic (state machine, retries) is not made here.

type EventKind string

const (
	EventStatusUpdate    EventKind = "status-update"
	EventEndOfCallReport EventKind = "end-of-call-report"
	EventHang            EventKind = "hang"
)

type webhookEnvelope struct {
	Message WebhookMessage `json:"message"`
}

// WebhookMessage is the subset of provider webhook fields we care about.
// Unknown fields are ignored; missing fields stay zero-valued.
type WebhookMessage struct {
	Type EventKind `json:"type"`

	Call CallRef `json:"call"`

	// status-update fields.
	Status string `json:"status,omitempty"`

	// end-of-call-report / hang fields.
	EndedReason string     `json:"endedReason,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`

	Costs []CostEntry `json:"costs,omitempty"`

	Artifact Artifact `json:"artifact,omitempty"`
	Analysis Analysis `json:"analysis,omitempty"`
}

type CallRef struct {
	ID string `json:"id"`
}

// CostEntry is one line of the provider's cost breakdown. Amounts arrive as
// decimal currency units and are converted to minor units by the adapter.
type CostEntry struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
}

// Artifact carries call products: transcript, recording, and the structured
// extraction keyed by opaque schema identifiers.
type Artifact struct {
	Transcript        string         `json:"transcript,omitempty"`
	RecordingURL      string         `json:"recordingUrl,omitempty"`
	StructuredOutputs map[string]any `json:"structuredOutputs,omitempty"`
}

// Analysis is the legacy location for structured data on older payloads.
type Analysis struct {
	StructuredData map[string]any `json:"structuredData,omitempty"`
}

var ErrEmptyBody = errors.New("provider: empty webhook body")

// maxWebhookBody bounds webhook reads; provider events are small.
const maxWebhookBody = 1 << 20

// ParseWebhookMessage decodes a webhook body defensively. It accepts both
// the enveloped shape and a bare message, and never fails on unknown fields.
func ParseWebhookMessage(body io.Reader) (WebhookMessage, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxWebhookBody))
	if err != nil {
		return WebhookMessage{}, err
	}
	if len(raw) == 0 {
		return WebhookMessage{}, ErrEmptyBody
	}

	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Message.Type != "" {
		return env.Message, nil
	}

	var msg WebhookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return WebhookMessage{}, err
	}
	return msg, nil
}

// StructuredOutputs returns the raw structured payload, preferring the
// artifact location over the legacy analysis one.
func (m WebhookMessage) StructuredOutputs() map[string]any {
	if len(m.Artifact.StructuredOutputs) > 0 {
		return m.Artifact.StructuredOutputs
	}
	return m.Analysis.StructuredData
}
