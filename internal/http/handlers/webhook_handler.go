// Provider webhook handler.
//
// This file exposes the single callback endpoint registered with the
// messaging provider:
//   - POST /webhook?route={status|click|inbound}&practice_id=..&token=..
//
// Provider callbacks arrive either form-encoded (the provider default) or as
// JSON, and use the provider's own field names (MessageSid/SmsSid/sms_sid,
// MessageStatus, ErrorCode, Body, From, event_type, click_time). The handler
// normalizes those into service-level events and delegates to WebhookService.
//
// Response contract: the provider retries on non-2xx, and a retry of an event
// we already applied is exactly the replay case the dedupe layer absorbs. So
// once the request passes the token gate, the handler ALWAYS answers
// 200 "ok" in plain text, even when applying the event failed internally;
// failures are logged and counted, never surfaced to the provider.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dentalops/recallbridge/internal/http/middleware"
	"github.com/dentalops/recallbridge/internal/services"
)

//
// Service contracts (context-aware)
//

// WebhookService defines the callback-ingestion operations consumed by the
// webhook handler. Implementations must be idempotent per event.
type WebhookService interface {
	// ApplyStatus records a delivery status callback.
	ApplyStatus(ctx context.Context, ev services.StatusEvent) (bool, error)
	// ApplyClick records a link click/preview callback.
	ApplyClick(ctx context.Context, ev services.ClickEvent) (bool, error)
	// ApplyInbound records an inbound SMS (keywords and replies).
	ApplyInbound(ctx context.Context, ev services.InboundEvent) (bool, error)
}

// StatsService defines the read-side reporting operations consumed by the
// admin handlers.
type StatsService interface {
	// Compute builds a stats snapshot for the given campaign and touch type.
	Compute(ctx context.Context, campaignID, touchType string) (services.Stats, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints: the provider webhook plus the
// read-only admin API (touches, patients, stats, events).
type Handlers struct {
	webhookSvc WebhookService
	statsSvc   StatsService

	reads AdminReads

	// practiceID is the single practice this deployment serves; the
	// practice_id query parameter on /webhook must match it.
	practiceID string
	// webhookToken gates /webhook. Empty disables the endpoint entirely.
	webhookToken string
	// campaignID is the active campaign used for stats defaults.
	campaignID string
}

// New constructs a Handlers instance bound to the given services.
func New(webhookSvc WebhookService, statsSvc StatsService, reads AdminReads, practiceID, webhookToken, campaignID string) *Handlers {
	return &Handlers{
		webhookSvc:   webhookSvc,
		statsSvc:     statsSvc,
		reads:        reads,
		practiceID:   practiceID,
		webhookToken: webhookToken,
		campaignID:   campaignID,
	}
}

//
// Payload normalization
//

// webhookPayload is the flattened callback body: form fields or top-level
// JSON keys, values stringified.
type webhookPayload map[string]string

// field returns the first non-empty value among the given keys, falling back
// to the query string (providers sometimes append callback params there).
func (p webhookPayload) field(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(p[k]); v != "" {
			return v
		}
	}
	for _, k := range keys {
		if v := strings.TrimSpace(c.Query(k)); v != "" {
			return v
		}
	}
	return ""
}

// parseWebhookBody reads the request body as form-encoded or JSON and
// flattens it into a webhookPayload. A malformed body yields an empty
// payload rather than an error; the missing-field paths downstream handle it.
func parseWebhookBody(c *gin.Context) webhookPayload {
	out := webhookPayload{}
	ct := c.ContentType()
	if strings.Contains(ct, "application/json") {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return out
		}
		var obj map[string]any
		if json.Unmarshal(raw, &obj) == nil {
			for k, v := range obj {
				switch t := v.(type) {
				case string:
					out[k] = t
				case float64:
					out[k] = fmt.Sprintf("%g", t)
				case bool:
					out[k] = fmt.Sprintf("%t", t)
				}
			}
		}
		return out
	}
	if err := c.Request.ParseForm(); err == nil {
		for k, vs := range c.Request.PostForm {
			if len(vs) > 0 {
				out[k] = vs[0]
			}
		}
	}
	return out
}

//
// Handler
//

// Webhook handles POST /webhook. The route query parameter selects the
// callback kind; legacy "twilio_status"-style route names are accepted.
func (h *Handlers) Webhook(c *gin.Context) {
	route := strings.ToLower(strings.TrimSpace(c.Query("route")))
	route = strings.TrimPrefix(route, "twilio_")
	practiceID := strings.TrimSpace(c.Query("practice_id"))
	token := c.Query("token")

	if route == "" || practiceID == "" {
		c.String(http.StatusBadRequest, "missing route/practice_id")
		return
	}
	if h.webhookToken == "" || token != h.webhookToken {
		c.String(http.StatusForbidden, "forbidden")
		return
	}
	if practiceID != h.practiceID {
		c.String(http.StatusNotFound, "unknown practice")
		return
	}

	payload := parseWebhookBody(c)
	ctx := c.Request.Context()

	var (
		applied bool
		err     error
	)
	switch route {
	case "status":
		applied, err = h.webhookSvc.ApplyStatus(ctx, services.StatusEvent{
			MessageSID: payload.field(c, "MessageSid", "SmsSid", "sms_sid", "sid"),
			Status:     payload.field(c, "MessageStatus", "SmsStatus", "message_status", "status"),
			ErrorCode:  payload.field(c, "ErrorCode", "error_code"),
		})
	case "click":
		applied, err = h.webhookSvc.ApplyClick(ctx, services.ClickEvent{
			MessageSID: payload.field(c, "sms_sid", "MessageSid", "SmsSid"),
			EventType:  strings.ToLower(payload.field(c, "event_type", "EventType")),
			ClickTime:  payload.field(c, "click_time", "ClickTime", "event_time"),
		})
	case "inbound":
		applied, err = h.webhookSvc.ApplyInbound(ctx, services.InboundEvent{
			MessageSID: payload.field(c, "MessageSid", "SmsSid", "sms_sid"),
			From:       payload.field(c, "From", "from"),
			Body:       payload.field(c, "Body", "body"),
		})
	default:
		c.String(http.StatusBadRequest, "unknown route")
		return
	}

	switch {
	case err != nil:
		middleware.CountWebhookEvent(route, "error")
		middleware.LoggerFrom(c).Error().
			Err(err).
			Str("route", route).
			Msg("webhook event failed")
	case applied:
		middleware.CountWebhookEvent(route, "applied")
	default:
		middleware.CountWebhookEvent(route, "duplicate")
	}

	// Provider contract: past the gate it is always 200 "ok".
	c.String(http.StatusOK, "ok")
}
