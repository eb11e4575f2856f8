package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dentalops/recallbridge/internal/config"
	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/repo"
)

func defaultInvariants() config.InvariantConfig {
	return config.InvariantConfig{
		MinSMSContactRate:    0.30,
		MaxInvalidRecallRate: 0.10,
	}
}

func TestComputeStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	elig := NewEligibilityService(db, testPractice())
	svc := NewStatsService(db, testPractice(), defaultInvariants())

	seedPatient(t, db, "p1", nil)
	seedPatient(t, db, "p2", func(p *domain.Patient) {
		p.PhoneE164 = ""
		p.HasSMSContact = false
	})
	seedPatient(t, db, "p3", func(p *domain.Patient) {
		p.DoNotText = true
		p.ComplaintFlag = true
	})
	if _, err := elig.BuildQueue(ctx, "camp-1", "T1"); err != nil {
		t.Fatalf("build queue: %v", err)
	}

	st, err := svc.Compute(ctx, "camp-1", "T1")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if st.PatientsTotal != 3 || st.WithPhone != 2 || st.OptedOut != 1 || st.Complaints != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if st.QueueTotal != 3 || st.QueueEligible != 1 {
		t.Fatalf("queue stats = %+v", st)
	}
}

func TestAssertInvariantsPass(t *testing.T) {
	db := newTestDB(t)
	svc := NewStatsService(db, testPractice(), defaultInvariants())

	st := Stats{PatientsTotal: 10, WithPhone: 8, QueueTotal: 10, QueueEligible: 4}
	if err := svc.AssertInvariants(context.Background(), "run-1", st); err != nil {
		t.Fatalf("AssertInvariants: %v", err)
	}
	events, _ := repo.ListRecentEvents(context.Background(), db, "prac-1", 5)
	if len(events) != 1 || events[0].EventType != domain.EventInvariantsPass {
		t.Fatalf("events = %+v", events)
	}
}

func TestAssertInvariantsCollectsAllFailures(t *testing.T) {
	db := newTestDB(t)
	svc := NewStatsService(db, testPractice(), defaultInvariants())

	// Empty corpus with a phantom queue row trips several checks at once.
	st := Stats{PatientsTotal: 0, QueueTotal: 1}
	err := svc.AssertInvariants(context.Background(), "run-1", st)
	if !errors.Is(err, ErrInvariantsFailed) {
		t.Fatalf("err = %v, want ErrInvariantsFailed", err)
	}
	for _, code := range []string{"patients_total_zero", "queue_total_mismatch", "zero_eligible"} {
		if !strings.Contains(err.Error(), code) {
			t.Errorf("error %q missing code %q", err, code)
		}
	}
	events, _ := repo.ListRecentEvents(context.Background(), db, "prac-1", 5)
	if len(events) != 1 || events[0].EventType != domain.EventInvariantsFail {
		t.Fatalf("events = %+v", events)
	}
}

func TestAssertInvariantsThresholds(t *testing.T) {
	svc := NewStatsService(newTestDB(t), testPractice(), defaultInvariants())
	ctx := context.Background()

	// 2/10 with phone is under the 30% floor.
	st := Stats{PatientsTotal: 10, WithPhone: 2, QueueTotal: 10, QueueEligible: 1}
	if err := svc.AssertInvariants(ctx, "run-1", st); err == nil || !strings.Contains(err.Error(), "sms_contact_rate") {
		t.Fatalf("err = %v, want sms_contact_rate failure", err)
	}

	// 2/10 invalid recall dates is over the 10% ceiling.
	st = Stats{PatientsTotal: 10, WithPhone: 8, InvalidRecall: 2, QueueTotal: 10, QueueEligible: 1}
	if err := svc.AssertInvariants(ctx, "run-2", st); err == nil || !strings.Contains(err.Error(), "invalid_recall_rate") {
		t.Fatalf("err = %v, want invalid_recall_rate failure", err)
	}
}

func TestAssertInvariantsAllowZeroEligible(t *testing.T) {
	inv := defaultInvariants()
	inv.AllowZeroEligible = true
	svc := NewStatsService(newTestDB(t), testPractice(), inv)

	st := Stats{PatientsTotal: 10, WithPhone: 8, QueueTotal: 10, QueueEligible: 0}
	if err := svc.AssertInvariants(context.Background(), "run-1", st); err != nil {
		t.Fatalf("AssertInvariants: %v", err)
	}
}

func TestResetErrored(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewStatsService(db, testPractice(), defaultInvariants())

	p1 := seedPatient(t, db, "p1", nil)
	seedTouch(t, db, p1, func(tch *domain.Touch) {
		tch.SendState = domain.SendStateError
		tch.ErrorCode = "21211"
		tch.ErrorMessage = "invalid number"
		tch.SendAttemptID = "attempt-1"
	})
	p2 := seedPatient(t, db, "p2", func(p *domain.Patient) { p.PhoneE164 = "+13015550102" })
	seedTouch(t, db, p2, func(tch *domain.Touch) {
		tch.PhoneE164 = "+13015550102"
		tch.SendState = domain.SendStateSent
		tch.MsgSID = "SM1"
	})

	n, err := svc.ResetErrored(ctx, "camp-1", "T1")
	if err != nil || n != 1 {
		t.Fatalf("ResetErrored = (%d, %v), want 1 row", n, err)
	}

	got, _ := repo.GetTouch(ctx, db, domain.TouchIDFor("prac-1", "camp-1", p1.PatientKey, "T1"))
	if got.SendState != domain.SendStateReady || got.ErrorCode != "" || got.SendAttemptID != "" {
		t.Fatalf("reset row = %+v", got)
	}
	sent, _ := repo.GetTouch(ctx, db, domain.TouchIDFor("prac-1", "camp-1", p2.PatientKey, "T1"))
	if sent.SendState != domain.SendStateSent {
		t.Fatalf("sent row changed: %+v", sent)
	}
}

func TestRenderBody(t *testing.T) {
	body := RenderBody("Bright Smiles Dental", "(301) 555-0100", "Ana", domain.RecallOverdue)
	for _, want := range []string{"Hi Ana", "Bright Smiles Dental", "past due", "(301) 555-0100", "Reply STOP to opt out."} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q missing %q", body, want)
		}
	}

	body = RenderBody("Bright Smiles Dental", "", "", domain.RecallDue)
	if !strings.Contains(body, "Hi there") || strings.Contains(body, "Questions?") {
		t.Errorf("fallback body = %q", body)
	}
	if !strings.Contains(body, "due for your next") {
		t.Errorf("due-soon lead missing: %q", body)
	}
}
