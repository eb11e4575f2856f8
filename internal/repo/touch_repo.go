// Package repo: touch persistence. Touches are the only rows with cross-run
// identity besides patients, so this file carries the workhorse queries of
// the claim/send pipeline and webhook ingestion.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/dentalops/recallbridge/internal/domain"
)

// GetTouch fetches a touch by its deterministic id, or ErrNotFound.
func GetTouch(ctx context.Context, db *gorm.DB, touchID string) (*domain.Touch, error) {
	var tch domain.Touch
	if err := db.WithContext(ctx).First(&tch, "touch_id = ?", touchID).Error; err != nil {
		return nil, err
	}
	return &tch, nil
}

// GetTouchByMsgSID fetches the touch carrying the given provider message id,
// or ErrNotFound. Status and click callbacks resolve their touch this way.
func GetTouchByMsgSID(ctx context.Context, db *gorm.DB, msgSID string) (*domain.Touch, error) {
	var tch domain.Touch
	if err := db.WithContext(ctx).First(&tch, "msg_sid = ?", msgSID).Error; err != nil {
		return nil, err
	}
	return &tch, nil
}

// ListTouchesByCampaign returns every touch for one (campaign, touch type)
// pair, ordered by touch id. The claim phase scans this set under the
// practice lock.
func ListTouchesByCampaign(ctx context.Context, db *gorm.DB, campaignID, touchType string) ([]domain.Touch, error) {
	var out []domain.Touch
	err := db.WithContext(ctx).
		Where("campaign_id = ? AND touch_type = ?", campaignID, touchType).
		Order("touch_id").
		Find(&out).Error
	return out, err
}

// ListTouchesByPhone returns touches for a normalized phone, most recently
// created first. Inbound processing stamps the newest matching touch.
func ListTouchesByPhone(ctx context.Context, db *gorm.DB, practiceID, phoneE164 string) ([]domain.Touch, error) {
	var out []domain.Touch
	err := db.WithContext(ctx).
		Where("practice_id = ? AND phone_e164 = ?", practiceID, phoneE164).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// CreateTouch inserts a new touch row.
func CreateTouch(ctx context.Context, db *gorm.DB, tch *domain.Touch) error {
	return db.WithContext(ctx).Create(tch).Error
}

// SaveTouch persists all fields of an existing touch row.
func SaveTouch(ctx context.Context, db *gorm.DB, tch *domain.Touch) error {
	return db.WithContext(ctx).Save(tch).Error
}

// CountTouchesByState returns the number of touches for the practice grouped
// into the given state.
func CountTouchesByState(ctx context.Context, db *gorm.DB, practiceID string, state domain.SendState) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Touch{}).
		Where("practice_id = ? AND send_state = ?", practiceID, state).
		Count(&total).Error
	return total, err
}

// CountTouches returns the total touch count for a practice, optionally
// filtered by state when state is non-empty.
func CountTouches(ctx context.Context, db *gorm.DB, practiceID string, state domain.SendState) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Touch{}).Where("practice_id = ?", practiceID)
	if state != "" {
		q = q.Where("send_state = ?", state)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListTouchesPage returns one page of touches for the admin read API,
// optionally filtered by state, newest first.
func ListTouchesPage(ctx context.Context, db *gorm.DB, practiceID string, state domain.SendState, offset, limit int) ([]domain.Touch, error) {
	q := db.WithContext(ctx).Where("practice_id = ?", practiceID)
	if state != "" {
		q = q.Where("send_state = ?", state)
	}
	var out []domain.Touch
	err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}
