// Package repo: append-only audit log. Entries are immutable once written;
// the only read paths are the admin API and the webhook dedupe fallback scan
// over a bounded recent window.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dentalops/recallbridge/internal/domain"
)

// DedupeScanWindow bounds how many recent audit rows the duplicate check
// inspects when the TTL cache has no answer.
const DedupeScanWindow = 500

// AppendEvent writes one audit entry. The payload is marshalled to JSON;
// marshalling failures degrade to an empty payload rather than losing the
// event.
func AppendEvent(ctx context.Context, db *gorm.DB, eventType domain.EventType, runID, practiceID, notes string, payload any, dedupeKey string) error {
	var payloadJSON string
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			payloadJSON = string(b)
		}
	}
	e := &domain.EventLogEntry{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		RunID:       runID,
		OccurredAt:  time.Now().UTC(),
		PracticeID:  practiceID,
		Notes:       notes,
		PayloadJSON: payloadJSON,
		DedupeKey:   dedupeKey,
	}
	return db.WithContext(ctx).Create(e).Error
}

// HasRecentDedupeKey reports whether the dedupe key appears in the most
// recent window of audit entries. Used as the durable fallback behind the
// TTL cache so replayed callbacks stay idempotent across process restarts.
func HasRecentDedupeKey(ctx context.Context, db *gorm.DB, dedupeKey string, window int) (bool, error) {
	if dedupeKey == "" {
		return false, nil
	}
	if window <= 0 {
		window = DedupeScanWindow
	}
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.EventLogEntry{}).
		Where("dedupe_key = ? AND event_id IN (?)", dedupeKey,
			db.Model(&domain.EventLogEntry{}).
				Select("event_id").
				Order("occurred_at desc").
				Limit(window),
		).
		Count(&count).Error
	return count > 0, err
}

// ListRecentEvents returns the newest audit entries, most recent first.
func ListRecentEvents(ctx context.Context, db *gorm.DB, practiceID string, limit int) ([]domain.EventLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.EventLogEntry
	err := db.WithContext(ctx).
		Where("practice_id = ?", practiceID).
		Order("occurred_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
