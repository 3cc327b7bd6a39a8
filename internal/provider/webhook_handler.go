package provider

import (
	"context"
	"crypto/subtle"
	"math"
	"net/http"

	"outreach-platform/internal/calls"
	"outreach-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const webhookSecretHeader = "X-Webhook-Secret"

// CallEvents is the lifecycle consumer for provider webhook events.
// Satisfied by *calls.Service.
type CallEvents interface {
	HandleStatusUpdate(ctx context.Context, ev calls.StatusUpdateEvent) error
	HandleEndOfCallReport(ctx context.Context, ev calls.EndOfCallReportEvent) error
	HandleHang(ctx context.Context, ev calls.HangEvent) error
}

// WebhookHandler converts provider webhook envelopes to internal event types
// and delegates to the call lifecycle service.
//
// Ack contract: the provider retries undelivered webhooks aggressively, so
// this handler responds 202 for every recognized-or-not event kind and never
// surfaces internal processing failures (they are logged instead).
type WebhookHandler struct {
	Calls CallEvents

	// Secret, when set, must match the X-Webhook-Secret header.
	Secret string
}

func (h WebhookHandler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lifecycle service not configured"})
		return
	}
	if h.Secret != "" {
		got := c.GetHeader(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	msg, err := ParseWebhookMessage(c.Request.Body)
	if err != nil {
		// Malformed payloads are dropped, not retried: the provider is the
		// delivery retry authority, and a 4xx would only cause retry storms.
		log.Warn("webhook parse failed", "err", err)
		c.JSON(http.StatusAccepted, gin.H{"received": true})
		return
	}

	if msg.Call.ID == "" {
		log.Warn("webhook event without call id dropped", "kind", msg.Type)
		c.JSON(http.StatusAccepted, gin.H{"received": true})
		return
	}

	ctx := c.Request.Context()
	switch msg.Type {
	case EventStatusUpdate:
		err = h.Calls.HandleStatusUpdate(ctx, calls.StatusUpdateEvent{
			ProviderCallID: msg.Call.ID,
			ProviderStatus: msg.Status,
			StartedAt:      msg.StartedAt,
		})
	case EventEndOfCallReport:
		err = h.Calls.HandleEndOfCallReport(ctx, calls.EndOfCallReportEvent{
			ProviderCallID: msg.Call.ID,
			EndedReason:    msg.EndedReason,
			StartedAt:      msg.StartedAt,
			EndedAt:        msg.EndedAt,
			Costs:          toCostEntries(msg.Costs),
			Transcript:     msg.Artifact.Transcript,
			RecordingURL:   msg.Artifact.RecordingURL,
			StructuredData: NormalizeStructuredOutputs(msg.StructuredOutputs()),
		})
	case EventHang:
		err = h.Calls.HandleHang(ctx, calls.HangEvent{
			ProviderCallID: msg.Call.ID,
			EndedReason:    msg.EndedReason,
			EndedAt:        msg.EndedAt,
		})
	default:
		log.Info("unrecognized webhook event kind ignored", "kind", msg.Type, "provider_call_id", msg.Call.ID)
	}
	if err != nil {
		log.Error("webhook event processing failed", "kind", msg.Type, "provider_call_id", msg.Call.ID, "err", err)
	}

	c.JSON(http.StatusAccepted, gin.H{"received": true})
}

// toCostEntries converts decimal currency amounts to minor units.
func toCostEntries(in []CostEntry) []calls.CostEntry {
	if len(in) == 0 {
		return nil
	}
	out := make([]calls.CostEntry, 0, len(in))
	for _, e := range in {
		out = append(out, calls.CostEntry{
			AmountMinor: int64(math.Round(e.Amount * 100)),
			Description: e.Description,
		})
	}
	return out
}
