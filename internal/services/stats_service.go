// Package services: StatsService
//
// Corpus counters and post-run invariant assertions. The invariants are the
// guard rail against silently importing a broken export: a run that produced
// an empty corpus, a queue out of step with the patient table, or a corpus
// with an implausibly low SMS-contact rate fails loudly instead of quietly
// texting nobody.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dentalops/recallbridge/internal/config"
	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/repo"
)

// Stats is a snapshot of the corpus and queue.
type Stats struct {
	PatientsTotal  int            `json:"patients_total"`
	WithPhone      int            `json:"with_phone"`
	OptedOut       int            `json:"opted_out"`
	Complaints     int            `json:"complaints"`
	InvalidRecall  int            `json:"invalid_recall"`
	QueueTotal     int            `json:"queue_total"`
	QueueEligible  int            `json:"queue_eligible"`
	QueueByReason  map[string]int `json:"queue_by_reason"`
	TouchesByState map[string]int `json:"touches_by_state"`
}

// StatsService computes corpus statistics and checks data-quality invariants.
type StatsService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Practice carries the per-practice settings.
	Practice config.PracticeConfig
	// Invariants holds the configured thresholds.
	Invariants config.InvariantConfig
}

// NewStatsService constructs a StatsService.
func NewStatsService(db *gorm.DB, practice config.PracticeConfig, inv config.InvariantConfig) *StatsService {
	return &StatsService{DB: db, Practice: practice, Invariants: inv}
}

// Compute builds a Stats snapshot for (campaignID, touchType).
func (s *StatsService) Compute(ctx context.Context, campaignID, touchType string) (Stats, error) {
	st := Stats{QueueByReason: map[string]int{}, TouchesByState: map[string]int{}}

	patients, err := repo.ListPatients(ctx, s.DB, s.Practice.PracticeID)
	if err != nil {
		return st, err
	}
	st.PatientsTotal = len(patients)
	for i := range patients {
		p := &patients[i]
		if p.PhoneE164 != "" {
			st.WithPhone++
		}
		if p.DoNotText {
			st.OptedOut++
		}
		if p.ComplaintFlag {
			st.Complaints++
		}
		if p.RecallStatus == domain.RecallUnknown || p.RecallStatus == "" {
			st.InvalidRecall++
		}
	}

	queue, err := repo.ListQueue(ctx, s.DB, campaignID, touchType)
	if err != nil {
		return st, err
	}
	st.QueueTotal = len(queue)
	for i := range queue {
		q := &queue[i]
		if q.Eligible {
			st.QueueEligible++
		} else {
			st.QueueByReason[q.IneligibleReason]++
		}
	}

	for _, state := range []domain.SendState{
		domain.SendStateReady, domain.SendStateSending, domain.SendStateSent,
		domain.SendStateWouldSend, domain.SendStateError, domain.SendStateSkipped,
	} {
		n, err := repo.CountTouchesByState(ctx, s.DB, s.Practice.PracticeID, state)
		if err != nil {
			return st, err
		}
		if n > 0 {
			st.TouchesByState[string(state)] = int(n)
		}
	}
	return st, nil
}

// AssertInvariants checks the configured data-quality thresholds against st.
// All violations are collected, logged once, and returned wrapped in
// ErrInvariantsFailed; a passing check appends a pass event.
func (s *StatsService) AssertInvariants(ctx context.Context, runID string, st Stats) error {
	var failed []string

	if st.PatientsTotal == 0 {
		failed = append(failed, "patients_total_zero")
	}
	if st.QueueTotal != st.PatientsTotal {
		failed = append(failed, "queue_total_mismatch")
	}
	if st.QueueEligible == 0 && !s.Invariants.AllowZeroEligible {
		failed = append(failed, "zero_eligible")
	}
	if st.PatientsTotal > 0 {
		smsRate := float64(st.WithPhone) / float64(st.PatientsTotal)
		if smsRate < s.Invariants.MinSMSContactRate {
			failed = append(failed, fmt.Sprintf("sms_contact_rate_%.2f", smsRate))
		}
		invalidRate := float64(st.InvalidRecall) / float64(st.PatientsTotal)
		if invalidRate > s.Invariants.MaxInvalidRecallRate {
			failed = append(failed, fmt.Sprintf("invalid_recall_rate_%.2f", invalidRate))
		}
	}

	if len(failed) > 0 {
		joined := strings.Join(failed, ", ")
		_ = repo.AppendEvent(ctx, s.DB, domain.EventInvariantsFail, runID, s.Practice.PracticeID, joined, st, "")
		return fmt.Errorf("%w: %s", ErrInvariantsFailed, joined)
	}
	_ = repo.AppendEvent(ctx, s.DB, domain.EventInvariantsPass, runID, s.Practice.PracticeID, "all invariants hold", st, "")
	return nil
}

// ResetErrored moves ERROR touches of (campaignID, touchType) back to READY.
// This is the deliberate operator action required before a failed row can be
// retried; nothing in the pipeline does this automatically.
func (s *StatsService) ResetErrored(ctx context.Context, campaignID, touchType string) (int, error) {
	res := s.DB.WithContext(ctx).
		Model(&domain.Touch{}).
		Where("campaign_id = ? AND touch_type = ? AND send_state = ?", campaignID, touchType, domain.SendStateError).
		Updates(map[string]any{
			"send_state":      domain.SendStateReady,
			"send_attempt_id": "",
			"error_code":      "",
			"error_message":   "",
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
