// Package services: SendService
//
// This file implements the two-phase claim/send pipeline. Phase one holds the
// practice-scoped lock with a bounded wait and performs all row transitions
// that must be mutually exclusive: the safety filter (inbound STOP or patient
// opt-out landed after the touch was created), reclamation of stuck SENDING
// rows, and the claim itself (READY → SENDING with a fresh attempt id). Every
// claim mutation is persisted before the lock is released. Phase two runs
// lock-free: each claimed row is re-read live so an opt-out that raced the
// claim still wins, then the message is simulated (dry run) or handed to the
// provider. Each per-touch outcome is appended to the audit log.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/google/uuid"

	"github.com/dentalops/recallbridge/internal/config"
	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/lock"
	"github.com/dentalops/recallbridge/internal/provider"
	"github.com/dentalops/recallbridge/internal/repo"
)

// ErrorCodeStuckSending marks a SENDING row reclaimed after sitting past the
// threshold with no provider message id.
const ErrorCodeStuckSending = "stuck_sending_timeout"

// ErrorCodeInvalidPhone marks a live send refused because the touch phone is
// not a valid E.164 number.
const ErrorCodeInvalidPhone = "invalid_phone_e164"

// ErrorCodeTransport marks a send that never got a provider response.
const ErrorCodeTransport = "transport_error"

// SendSummary reports the outcome of one claim/send run.
type SendSummary struct {
	RunID     string `json:"run_id"`
	Claimed   int    `json:"claimed"`
	Sent      int    `json:"sent"`
	WouldSend int    `json:"would_send"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
	Stuck     int    `json:"stuck"`
}

// SendService drives claimed touches through the provider.
type SendService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Locks serializes claim phases per practice.
	Locks *lock.Keyed
	// Sender performs the outbound provider call in LIVE runs.
	Sender provider.Sender
	// Practice carries the per-practice settings.
	Practice config.PracticeConfig
	// StatusCallbackURL, when set, is passed to the provider so delivery
	// callbacks route back to this deployment.
	StatusCallbackURL string
	// LockWait bounds how long a run waits for the practice lock.
	LockWait time.Duration
	// StuckAfter is the age past which a SENDING row with no provider id is
	// reclaimed as errored.
	StuckAfter time.Duration
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewSendService constructs a SendService with the configured timing knobs.
func NewSendService(db *gorm.DB, locks *lock.Keyed, sender provider.Sender, cfg config.Config) *SendService {
	return &SendService{
		DB:                db,
		Locks:             locks,
		Sender:            sender,
		Practice:          cfg.Practice,
		StatusCallbackURL: cfg.Provider.StatusCallbackURL,
		LockWait:          cfg.LockWait,
		StuckAfter:        cfg.StuckAfter,
		Now:               time.Now,
	}
}

// Run claims up to limit READY touches for (campaignID, touchType) and sends
// them. limit <= 0 means no cap. The kill switch and a missing campaign id
// abort before any row is mutated.
func (s *SendService) Run(ctx context.Context, campaignID, touchType string, limit int, dryRun bool) (SendSummary, error) {
	sum := SendSummary{RunID: uuid.NewString()}
	practiceID := s.Practice.PracticeID

	if campaignID == "" {
		return sum, ErrNoCampaign
	}
	if s.Practice.KillSwitch == config.KillSwitchOn && !dryRun {
		_ = repo.AppendEvent(ctx, s.DB, domain.EventSendFail, sum.RunID, practiceID, ErrKillSwitchOn.Error(), nil, "")
		return sum, ErrKillSwitchOn
	}

	_ = repo.AppendEvent(ctx, s.DB, domain.EventSendStart, sum.RunID, practiceID,
		"send run started", map[string]any{"campaign_id": campaignID, "touch_type": touchType, "dry_run": dryRun, "limit": limit}, "")

	claimed, err := s.claim(ctx, &sum, campaignID, touchType, limit, dryRun)
	if err != nil {
		_ = repo.AppendEvent(ctx, s.DB, domain.EventSendFail, sum.RunID, practiceID, err.Error(), nil, "")
		return sum, err
	}

	for _, tch := range claimed {
		s.deliver(ctx, &sum, tch, dryRun)
	}

	_ = repo.AppendEvent(ctx, s.DB, domain.EventSendPass, sum.RunID, practiceID, "send run finished", sum, "")
	return sum, nil
}

// claim is phase one. It returns the rows moved to SENDING, each persisted
// with its attempt id before the lock was released.
func (s *SendService) claim(ctx context.Context, sum *SendSummary, campaignID, touchType string, limit int, dryRun bool) ([]*domain.Touch, error) {
	release, err := s.Locks.Acquire(ctx, s.Practice.PracticeID, s.LockWait)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, ErrLockBusy
		}
		return nil, err
	}
	defer release()

	touches, err := repo.ListTouchesByCampaign(ctx, s.DB, campaignID, touchType)
	if err != nil {
		return nil, err
	}

	optedOut, err := s.optedOutKeys(ctx)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	var claimed []*domain.Touch
	for i := range touches {
		tch := &touches[i]

		// Reclaim rows stuck in SENDING: a crash between claim and send
		// leaves the row claimed forever unless someone ages it out.
		// Age is measured from planned_at, stamped at claim time.
		age := now.Sub(tch.UpdatedAt)
		if tch.PlannedAt != nil {
			age = now.Sub(*tch.PlannedAt)
		}
		if tch.SendState == domain.SendStateSending && tch.MsgSID == "" && age > s.StuckAfter {
			tch.SendState = domain.SendStateError
			tch.ErrorCode = ErrorCodeStuckSending
			tch.ErrorMessage = fmt.Sprintf("claimed %s ago with no provider response", age.Round(time.Second))
			if err := repo.SaveTouch(ctx, s.DB, tch); err != nil {
				return claimed, err
			}
			sum.Stuck++
			s.logTouch(ctx, sum.RunID, domain.EventTouchError, tch, "stuck SENDING reclaimed")
			continue
		}

		if tch.SendState != domain.SendStateReady {
			continue
		}

		// Safety filter: opt-outs that landed after touch creation win
		// before any claim happens.
		if reason := skipReason(tch, optedOut); reason != "" {
			tch.SendState = domain.SendStateSkipped
			tch.IneligibleReason = reason
			if err := repo.SaveTouch(ctx, s.DB, tch); err != nil {
				return claimed, err
			}
			sum.Skipped++
			s.logTouch(ctx, sum.RunID, domain.EventTouchSkipped, tch, "skipped by safety filter")
			continue
		}

		if limit > 0 && len(claimed) >= limit {
			continue
		}

		tch.SendState = domain.SendStateSending
		tch.SendAttemptID = uuid.NewString()
		tch.DryRun = dryRun
		claimedAt := now
		tch.PlannedAt = &claimedAt
		if err := repo.SaveTouch(ctx, s.DB, tch); err != nil {
			return claimed, err
		}
		claimed = append(claimed, tch)
	}
	sum.Claimed = len(claimed)
	return claimed, nil
}

// deliver is phase two for one claimed touch. All outcomes are absorbed into
// the summary; a row-level failure never aborts the rest of the run.
func (s *SendService) deliver(ctx context.Context, sum *SendSummary, claimedRow *domain.Touch, dryRun bool) {
	tch, err := repo.GetTouch(ctx, s.DB, claimedRow.TouchID)
	if err != nil {
		sum.Errors++
		s.logTouch(ctx, sum.RunID, domain.EventTouchError, claimedRow, "re-read failed: "+err.Error())
		return
	}
	// Another process may have re-claimed or resolved the row in between.
	if tch.SendState != domain.SendStateSending || tch.SendAttemptID != claimedRow.SendAttemptID {
		return
	}

	patient, err := repo.GetPatient(ctx, s.DB, tch.PatientKey)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		sum.Errors++
		s.logTouch(ctx, sum.RunID, domain.EventTouchError, tch, "patient read failed: "+err.Error())
		return
	}

	now := s.Now()

	// Live re-check: an opt-out that raced the claim still wins.
	if reason := liveSkipReason(tch, patient); reason != "" {
		tch.SendState = domain.SendStateSkipped
		tch.IneligibleReason = reason
		if err := repo.SaveTouch(ctx, s.DB, tch); err == nil {
			sum.Skipped++
			s.logTouch(ctx, sum.RunID, domain.EventTouchSkipped, tch, "skipped on live re-check")
		}
		return
	}

	if dryRun {
		tch.SendState = domain.SendStateWouldSend
		if tch.SentAt == nil {
			tch.SentAt = &now
		}
		if err := repo.SaveTouch(ctx, s.DB, tch); err == nil {
			sum.WouldSend++
			s.logTouch(ctx, sum.RunID, domain.EventTouchSent, tch, "simulated send")
		}
		return
	}

	if !domain.ValidE164(tch.PhoneE164) {
		s.fail(ctx, sum, tch, ErrorCodeInvalidPhone, "phone is not valid E.164: "+tch.PhoneE164)
		return
	}

	var firstName, recallStatus string
	if patient != nil {
		firstName = patient.FirstName
		recallStatus = patient.RecallStatus
	}
	body := RenderBody(s.Practice.PracticeName, s.Practice.OfficePhone, firstName, recallStatus)

	res, err := s.Sender.Send(ctx, tch.PhoneE164, body, s.StatusCallbackURL)
	if err != nil {
		s.fail(ctx, sum, tch, ErrorCodeTransport, err.Error())
		return
	}
	if !res.OK() {
		code := res.ErrorCode
		if code == "" {
			code = fmt.Sprintf("http_%d", res.HTTPStatus)
		}
		s.fail(ctx, sum, tch, code, res.ErrorMessage)
		return
	}

	tch.SendState = domain.SendStateSent
	tch.MsgSID = res.ProviderMessageID
	tch.ErrorCode = ""
	tch.ErrorMessage = ""
	if tch.SentAt == nil {
		tch.SentAt = &now
	}
	if err := repo.SaveTouch(ctx, s.DB, tch); err == nil {
		sum.Sent++
		s.logTouch(ctx, sum.RunID, domain.EventTouchSent, tch, "provider accepted")
	}
}

func (s *SendService) fail(ctx context.Context, sum *SendSummary, tch *domain.Touch, code, msg string) {
	tch.SendState = domain.SendStateError
	tch.ErrorCode = code
	tch.ErrorMessage = msg
	if err := repo.SaveTouch(ctx, s.DB, tch); err == nil {
		sum.Errors++
		s.logTouch(ctx, sum.RunID, domain.EventTouchError, tch, msg)
	}
}

func (s *SendService) logTouch(ctx context.Context, runID string, et domain.EventType, tch *domain.Touch, notes string) {
	_ = repo.AppendEvent(ctx, s.DB, et, runID, s.Practice.PracticeID, notes, map[string]any{
		"touch_id":   tch.TouchID,
		"send_state": tch.SendState,
		"error_code": tch.ErrorCode,
		"msg_sid":    tch.MsgSID,
	}, "")
}

// optedOutKeys loads the set of patient keys currently opted out.
func (s *SendService) optedOutKeys(ctx context.Context) (map[string]bool, error) {
	var keys []string
	err := s.DB.WithContext(ctx).
		Model(&domain.Patient{}).
		Where("practice_id = ? AND do_not_text = ?", s.Practice.PracticeID, true).
		Pluck("patient_key", &keys).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

func skipReason(tch *domain.Touch, optedOut map[string]bool) string {
	if tch.StopAt != nil {
		return domain.ReasonStopReceived
	}
	if optedOut[tch.PatientKey] {
		return domain.ReasonDoNotText
	}
	return ""
}

func liveSkipReason(tch *domain.Touch, p *domain.Patient) string {
	if tch.StopAt != nil {
		return domain.ReasonStopReceived
	}
	if p != nil && p.DoNotText {
		return domain.ReasonDoNotText
	}
	return ""
}
