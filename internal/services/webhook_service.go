// Package services: WebhookService
//
// This file implements provider callback ingestion: delivery status updates,
// link click events, and inbound replies (including STOP/HELP/START keyword
// handling). Every entry point is idempotent: a dedupe key derived from the
// callback payload is checked against a TTL cache and, as a restart-safe
// fallback, against the recent window of the audit log. Exact replays are
// silent no-ops.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dentalops/recallbridge/internal/cache"
	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/repo"
)

// stopWords are the carrier-mandated opt-out keywords. startWords restore
// consent; only an explicit keyword clears do_not_text, never an import.
var (
	stopWords  = map[string]bool{"STOP": true, "STOPALL": true, "UNSUBSCRIBE": true, "CANCEL": true, "END": true, "QUIT": true}
	startWords = map[string]bool{"START": true, "UNSTOP": true, "YES": true}
)

// StatusEvent is one delivery status callback.
type StatusEvent struct {
	MessageSID string
	Status     string
	ErrorCode  string
}

// ClickEvent is one link click/preview callback.
type ClickEvent struct {
	MessageSID string
	EventType  string
	ClickTime  string
}

// InboundEvent is one inbound SMS callback.
type InboundEvent struct {
	MessageSID string
	From       string
	Body       string
}

// WebhookService applies provider callbacks to touches and patients.
type WebhookService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Cache is the TTL dedupe cache (in-memory or Redis). Cache failures are
	// fail-open: the audit-log window scan is the durable backstop.
	Cache cache.TTLCache
	// PracticeID scopes patient lookups.
	PracticeID string
	// DedupeTTL bounds how long a dedupe key stays hot in the cache.
	DedupeTTL time.Duration
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewWebhookService constructs a WebhookService.
func NewWebhookService(db *gorm.DB, c cache.TTLCache, practiceID string, dedupeTTL time.Duration) *WebhookService {
	return &WebhookService{DB: db, Cache: c, PracticeID: practiceID, DedupeTTL: dedupeTTL, Now: time.Now}
}

// ApplyStatus records a delivery status update. Terminal statuses (delivered,
// undelivered, failed) are never downgraded once recorded, each status
// timestamp is first-write-wins, and a delivered callback upgrades a
// simulated WOULD_SEND touch to confirmed SENT. The boolean reports whether
// the event was applied (false means deduplicated or unusable).
func (s *WebhookService) ApplyStatus(ctx context.Context, ev StatusEvent) (bool, error) {
	sid := strings.TrimSpace(ev.MessageSID)
	status := strings.ToLower(strings.TrimSpace(ev.Status))
	if sid == "" || status == "" {
		return false, nil
	}

	key := "status:" + sid + ":" + status + ":" + ev.ErrorCode
	seen, err := s.seen(ctx, key)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	now := s.Now()
	notes := "status " + status
	tch, err := repo.GetTouchByMsgSID(ctx, s.DB, sid)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		notes = "status " + status + " for unknown message"
	case err != nil:
		return false, err
	default:
		if !domain.TerminalProviderStatus(tch.ProviderStatus) {
			tch.ProviderStatus = status
		}
		switch status {
		case domain.ProviderDelivered:
			if tch.DeliveredAt == nil {
				tch.DeliveredAt = &now
			}
			if tch.SendState == domain.SendStateWouldSend {
				tch.SendState = domain.SendStateSent
			}
		case domain.ProviderUndelivered:
			if tch.UndeliveredAt == nil {
				tch.UndeliveredAt = &now
			}
		case domain.ProviderFailed:
			if tch.FailedAt == nil {
				tch.FailedAt = &now
			}
		}
		if ev.ErrorCode != "" && tch.ErrorCode == "" {
			tch.ErrorCode = ev.ErrorCode
		}
		if err := repo.SaveTouch(ctx, s.DB, tch); err != nil {
			return false, err
		}
	}

	if err := repo.AppendEvent(ctx, s.DB, domain.EventProviderStatus, "", s.PracticeID, notes,
		map[string]string{"msg_sid": sid, "status": status, "error_code": ev.ErrorCode}, key); err != nil {
		return false, err
	}
	s.mark(ctx, key)
	return true, nil
}

// ApplyClick records a link click or preview. Counters only ever grow; the
// first-click timestamp is written once, the last-click timestamp always.
func (s *WebhookService) ApplyClick(ctx context.Context, ev ClickEvent) (bool, error) {
	sid := strings.TrimSpace(ev.MessageSID)
	if sid == "" {
		return false, nil
	}
	eventType := strings.ToLower(strings.TrimSpace(ev.EventType))
	if eventType == "" {
		eventType = "click"
	}

	key := "click:" + sid + ":" + eventType + ":" + ev.ClickTime
	seen, err := s.seen(ctx, key)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	ts := s.Now()
	if ev.ClickTime != "" {
		if parsed, err := time.Parse(time.RFC3339, ev.ClickTime); err == nil {
			ts = parsed
		}
	}

	notes := "event " + eventType
	tch, err := repo.GetTouchByMsgSID(ctx, s.DB, sid)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		notes = "event " + eventType + " for unknown message"
	case err != nil:
		return false, err
	default:
		if strings.Contains(eventType, "preview") {
			tch.PreviewCount++
		} else {
			tch.ClickCount++
			if tch.FirstClickedAt == nil {
				tch.FirstClickedAt = &ts
			}
			tch.LastClickedAt = &ts
		}
		if err := repo.SaveTouch(ctx, s.DB, tch); err != nil {
			return false, err
		}
	}

	if err := repo.AppendEvent(ctx, s.DB, domain.EventProviderClick, "", s.PracticeID, notes,
		map[string]string{"msg_sid": sid, "event_type": eventType, "click_time": ev.ClickTime}, key); err != nil {
		return false, err
	}
	s.mark(ctx, key)
	return true, nil
}

// ApplyInbound records an inbound SMS. STOP-family keywords set the patient
// opt-out and stamp stop_at on the newest touch; START-family keywords are
// the explicit consent-restore path; HELP is recognized but mutates nothing;
// any other body counts as a reply (reply_at first-write, body stored
// truncated to 160 runes).
func (s *WebhookService) ApplyInbound(ctx context.Context, ev InboundEvent) (bool, error) {
	from := domain.NormalizePhone(ev.From)
	if from == "" {
		from = strings.TrimSpace(ev.From)
	}
	body := strings.TrimSpace(ev.Body)
	if from == "" {
		return false, nil
	}

	key := "inbound:" + ev.MessageSID + ":" + from + ":" + body
	seen, err := s.seen(ctx, key)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	now := s.Now()
	keyword := strings.ToUpper(body)
	isStop := stopWords[keyword]
	isStart := startWords[keyword]
	isHelp := keyword == "HELP"

	patient, err := repo.GetPatientByPhone(ctx, s.DB, s.PracticeID, from)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return false, err
	}
	if patient != nil {
		if isStop {
			if err := repo.SetDoNotText(ctx, s.DB, patient.PatientKey, true, "STOP", now); err != nil {
				return false, err
			}
		} else if isStart {
			if err := repo.SetDoNotText(ctx, s.DB, patient.PatientKey, false, "START", now); err != nil {
				return false, err
			}
		}
	}

	// Annotate the newest touch for this number, when one exists.
	touches, err := repo.ListTouchesByPhone(ctx, s.DB, s.PracticeID, from)
	if err != nil {
		return false, err
	}
	if len(touches) > 0 {
		tch := &touches[0]
		tch.LastInboundBody = truncateRunes(body, 160)
		switch {
		case isStop:
			if tch.StopAt == nil {
				tch.StopAt = &now
			}
		case isHelp, isStart:
			// keywords are not replies
		default:
			if tch.ReplyAt == nil {
				tch.ReplyAt = &now
			}
		}
		if err := repo.SaveTouch(ctx, s.DB, tch); err != nil {
			return false, err
		}
	}

	notes := "inbound"
	switch {
	case isStop:
		notes = "inbound STOP"
	case isStart:
		notes = "inbound consent restore"
	case isHelp:
		notes = "inbound HELP"
	}
	if err := repo.AppendEvent(ctx, s.DB, domain.EventProviderInbound, "", s.PracticeID, notes,
		map[string]string{"msg_sid": ev.MessageSID, "from": from, "body": truncateRunes(body, 160)}, key); err != nil {
		return false, err
	}
	s.mark(ctx, key)
	return true, nil
}

// seen checks the dedupe cache first and falls back to the audit-log window.
// Cache read errors fail open; the log scan is authoritative.
func (s *WebhookService) seen(ctx context.Context, key string) (bool, error) {
	if s.Cache != nil {
		if _, hit, err := s.Cache.Get(ctx, key); err == nil && hit {
			return true, nil
		}
	}
	return repo.HasRecentDedupeKey(ctx, s.DB, key, repo.DedupeScanWindow)
}

func (s *WebhookService) mark(ctx context.Context, key string) {
	if s.Cache != nil {
		_ = s.Cache.Set(ctx, key, "1", s.DedupeTTL)
	}
}
