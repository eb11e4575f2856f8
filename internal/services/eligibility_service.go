// Package services: EligibilityService
//
// This file implements the EligibilityService, which derives the outreach
// queue from the patient corpus. Eligibility is evaluated per patient with a
// short-circuiting precedence order (NO_PHONE, DO_NOT_TEXT, COMPLAINT,
// NOT_IN_WINDOW), so each ineligible entry carries exactly one reason: the
// first one that applied. The queue is a disposable derived view and is
// rewritten wholesale in a single transaction on every build.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dentalops/recallbridge/internal/config"
	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/repo"
)

// QueueSummary reports the outcome of one queue build.
type QueueSummary struct {
	RunID      string         `json:"run_id"`
	Total      int            `json:"total"`
	Eligible   int            `json:"eligible"`
	Ineligible int            `json:"ineligible"`
	ByReason   map[string]int `json:"by_reason"`
}

// EligibilityService rebuilds the outreach queue from current patient state.
type EligibilityService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Practice carries the per-practice settings (id, recall window).
	Practice config.PracticeConfig
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewEligibilityService constructs an EligibilityService.
func NewEligibilityService(db *gorm.DB, practice config.PracticeConfig) *EligibilityService {
	return &EligibilityService{DB: db, Practice: practice, Now: time.Now}
}

// Evaluate computes the recall status and eligibility verdict for one patient
// at the given instant. It returns the verdict, the single ineligibility
// reason (empty when eligible), and the derived recall status.
func (s *EligibilityService) Evaluate(p *domain.Patient, now time.Time) (bool, string, string) {
	status := domain.ComputeRecallStatus(p.RecallDueDate, s.Practice.RecallDueWindowDays, now)
	switch {
	case p.PhoneE164 == "":
		return false, domain.ReasonNoPhone, status
	case p.DoNotText:
		return false, domain.ReasonDoNotText, status
	case p.ComplaintFlag:
		return false, domain.ReasonComplaint, status
	case status != domain.RecallOverdue && status != domain.RecallDue:
		return false, domain.ReasonNotInWindow, status
	}
	return true, "", status
}

// BuildQueue evaluates every patient of the practice and replaces the queue
// for (campaignID, touchType) atomically. An empty patient table is an error:
// it means the import step never ran, and silently producing an empty queue
// would mask that.
func (s *EligibilityService) BuildQueue(ctx context.Context, campaignID, touchType string) (QueueSummary, error) {
	sum := QueueSummary{RunID: uuid.NewString(), ByReason: map[string]int{}}
	if campaignID == "" {
		return sum, ErrNoCampaign
	}

	practiceID := s.Practice.PracticeID
	_ = repo.AppendEvent(ctx, s.DB, domain.EventQueueStart, sum.RunID, practiceID,
		"queue build started", map[string]string{"campaign_id": campaignID, "touch_type": touchType}, "")

	patients, err := repo.ListPatients(ctx, s.DB, practiceID)
	if err != nil {
		_ = repo.AppendEvent(ctx, s.DB, domain.EventQueueFail, sum.RunID, practiceID, err.Error(), nil, "")
		return sum, err
	}
	if len(patients) == 0 {
		_ = repo.AppendEvent(ctx, s.DB, domain.EventQueueFail, sum.RunID, practiceID, ErrNoPatients.Error(), nil, "")
		return sum, ErrNoPatients
	}

	now := s.Now()
	entries := make([]domain.QueueEntry, 0, len(patients))
	for i := range patients {
		p := &patients[i]
		eligible, reason, status := s.Evaluate(p, now)
		entries = append(entries, domain.QueueEntry{
			CampaignID:       campaignID,
			TouchType:        touchType,
			PatientKey:       p.PatientKey,
			PhoneE164:        p.PhoneE164,
			Eligible:         eligible,
			IneligibleReason: reason,
			RecallDueDate:    p.RecallDueDate,
			RecallStatus:     status,
			DoNotText:        p.DoNotText,
			ComputedAt:       now,
		})
		sum.Total++
		if eligible {
			sum.Eligible++
		} else {
			sum.Ineligible++
			sum.ByReason[reason]++
		}
	}

	if err := repo.ReplaceQueue(ctx, s.DB, campaignID, touchType, entries); err != nil {
		_ = repo.AppendEvent(ctx, s.DB, domain.EventQueueFail, sum.RunID, practiceID, err.Error(), nil, "")
		return sum, err
	}

	_ = repo.AppendEvent(ctx, s.DB, domain.EventQueuePass, sum.RunID, practiceID, "queue build finished", sum, "")
	return sum, nil
}
