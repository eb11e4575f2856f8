// Package repo: queue persistence. The queue is a disposable derived view:
// it is always replaced wholesale, never patched row by row, so readers can
// trust that what they see is the output of exactly one eligibility run.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/dentalops/recallbridge/internal/domain"
)

// ReplaceQueue atomically clears and rewrites the queue for one
// (campaign, touch type) pair in a single transaction.
func ReplaceQueue(ctx context.Context, db *gorm.DB, campaignID, touchType string, entries []domain.QueueEntry) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ? AND touch_type = ?", campaignID, touchType).
			Delete(&domain.QueueEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(entries, 200).Error
	})
}

// ListQueue returns all queue entries for one (campaign, touch type) pair,
// ordered by patient key.
func ListQueue(ctx context.Context, db *gorm.DB, campaignID, touchType string) ([]domain.QueueEntry, error) {
	var out []domain.QueueEntry
	err := db.WithContext(ctx).
		Where("campaign_id = ? AND touch_type = ?", campaignID, touchType).
		Order("patient_key").
		Find(&out).Error
	return out, err
}
