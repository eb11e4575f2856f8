// Package services: TouchService
//
// This file implements the TouchService, the factory that materializes queue
// entries into durable touches. Touch ids are deterministic digests of
// (practice, campaign, patient, touch type), so repeated runs are idempotent:
// the same inputs always resolve to the same row. Rows that already reached a
// terminal success state are never reverted; rows still in READY or SKIPPED
// get their eligibility snapshot refreshed and their state recomputed.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/google/uuid"

	"github.com/dentalops/recallbridge/internal/config"
	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/repo"
)

// TouchSummary reports the outcome of one touch-factory run.
type TouchSummary struct {
	RunID     string `json:"run_id"`
	QueueRows int    `json:"queue_rows"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Existing  int    `json:"existing"`
	Ready     int    `json:"ready"`
	Skipped   int    `json:"skipped"`
}

// TouchService creates and refreshes touches from the current queue.
type TouchService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Practice carries the per-practice settings (id, kill switch, mode).
	Practice config.PracticeConfig
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewTouchService constructs a TouchService.
func NewTouchService(db *gorm.DB, practice config.PracticeConfig) *TouchService {
	return &TouchService{DB: db, Practice: practice, Now: time.Now}
}

// CreateTouches materializes the queue for (campaignID, touchType) into touch
// rows. The kill switch aborts before any touch is written. dryRun is stamped
// on rows the run creates or refreshes so a later claim run knows how they
// were planned.
func (s *TouchService) CreateTouches(ctx context.Context, campaignID, touchType string, dryRun bool) (TouchSummary, error) {
	sum := TouchSummary{RunID: uuid.NewString()}
	practiceID := s.Practice.PracticeID

	if campaignID == "" {
		return sum, ErrNoCampaign
	}
	if s.Practice.KillSwitch == config.KillSwitchOn && !dryRun {
		_ = repo.AppendEvent(ctx, s.DB, domain.EventCreateTouchesFail, sum.RunID, practiceID,
			ErrKillSwitchOn.Error(), nil, "")
		return sum, ErrKillSwitchOn
	}

	_ = repo.AppendEvent(ctx, s.DB, domain.EventCreateTouchesStart, sum.RunID, practiceID,
		"touch creation started", map[string]any{"campaign_id": campaignID, "touch_type": touchType, "dry_run": dryRun}, "")

	queue, err := repo.ListQueue(ctx, s.DB, campaignID, touchType)
	if err != nil {
		_ = repo.AppendEvent(ctx, s.DB, domain.EventCreateTouchesFail, sum.RunID, practiceID, err.Error(), nil, "")
		return sum, err
	}
	sum.QueueRows = len(queue)

	now := s.Now()
	for i := range queue {
		q := &queue[i]
		touchID := domain.TouchIDFor(practiceID, campaignID, q.PatientKey, touchType)

		existing, err := repo.GetTouch(ctx, s.DB, touchID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			tch := &domain.Touch{
				TouchID:          touchID,
				PracticeID:       practiceID,
				CampaignID:       campaignID,
				TouchType:        touchType,
				PatientKey:       q.PatientKey,
				PhoneE164:        q.PhoneE164,
				Eligible:         q.Eligible,
				IneligibleReason: q.IneligibleReason,
				SendState:        stateFor(q.Eligible),
				DryRun:           dryRun,
				PlannedAt:        &now,
			}
			if err := repo.CreateTouch(ctx, s.DB, tch); err != nil {
				_ = repo.AppendEvent(ctx, s.DB, domain.EventCreateTouchesFail, sum.RunID, practiceID, err.Error(), nil, "")
				return sum, err
			}
			sum.Created++
			s.count(&sum, tch.SendState)

		case err != nil:
			_ = repo.AppendEvent(ctx, s.DB, domain.EventCreateTouchesFail, sum.RunID, practiceID, err.Error(), nil, "")
			return sum, err

		case existing.SendState.TerminalSuccess():
			// SENT and WOULD_SEND rows are done; repeat runs leave them alone.
			sum.Existing++

		case existing.SendState.Resettable():
			existing.PhoneE164 = q.PhoneE164
			existing.Eligible = q.Eligible
			existing.IneligibleReason = q.IneligibleReason
			existing.SendState = stateFor(q.Eligible)
			existing.DryRun = dryRun
			existing.PlannedAt = &now
			if err := repo.SaveTouch(ctx, s.DB, existing); err != nil {
				_ = repo.AppendEvent(ctx, s.DB, domain.EventCreateTouchesFail, sum.RunID, practiceID, err.Error(), nil, "")
				return sum, err
			}
			sum.Updated++
			s.count(&sum, existing.SendState)

		default:
			// SENDING and ERROR rows need the claim pipeline or an operator
			// reset; the factory does not touch them.
			sum.Existing++
		}
	}

	_ = repo.AppendEvent(ctx, s.DB, domain.EventCreateTouchesPass, sum.RunID, practiceID, "touch creation finished", sum, "")
	return sum, nil
}

func (s *TouchService) count(sum *TouchSummary, st domain.SendState) {
	switch st {
	case domain.SendStateReady:
		sum.Ready++
	case domain.SendStateSkipped:
		sum.Skipped++
	}
}

func stateFor(eligible bool) domain.SendState {
	if eligible {
		return domain.SendStateReady
	}
	return domain.SendStateSkipped
}
