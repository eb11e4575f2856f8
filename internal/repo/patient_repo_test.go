package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dentalops/recallbridge/internal/domain"
)

func TestReplacePatientsWholesale(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := []domain.Patient{
		{PatientKey: "k1", PracticeID: "prac1", ExternalPatientID: "e1"},
		{PatientKey: "k2", PracticeID: "prac1", ExternalPatientID: "e2"},
	}
	if err := ReplacePatients(ctx, db, "prac1", first); err != nil {
		t.Fatalf("ReplacePatients: %v", err)
	}

	second := []domain.Patient{
		{PatientKey: "k2", PracticeID: "prac1", ExternalPatientID: "e2"},
		{PatientKey: "k3", PracticeID: "prac1", ExternalPatientID: "e3"},
	}
	if err := ReplacePatients(ctx, db, "prac1", second); err != nil {
		t.Fatalf("ReplacePatients rewrite: %v", err)
	}

	got, err := ListPatients(ctx, db, "prac1")
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(got) != 2 || got[0].PatientKey != "k2" || got[1].PatientKey != "k3" {
		t.Fatalf("unexpected patients after rewrite: %+v", got)
	}
}

func TestReplacePatientsScopedToPractice(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := ReplacePatients(ctx, db, "prac1", []domain.Patient{{PatientKey: "a", PracticeID: "prac1", ExternalPatientID: "e1"}}); err != nil {
		t.Fatalf("seed prac1: %v", err)
	}
	if err := ReplacePatients(ctx, db, "prac2", []domain.Patient{{PatientKey: "b", PracticeID: "prac2", ExternalPatientID: "e2"}}); err != nil {
		t.Fatalf("seed prac2: %v", err)
	}
	if err := ReplacePatients(ctx, db, "prac1", nil); err != nil {
		t.Fatalf("clear prac1: %v", err)
	}

	if n, err := CountPatients(ctx, db, "prac2"); err != nil || n != 1 {
		t.Fatalf("prac2 patients disturbed: n=%d err=%v", n, err)
	}
}

func TestGetPatientByPhone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed := []domain.Patient{
		{PatientKey: "k1", PracticeID: "prac1", ExternalPatientID: "e1", PhoneE164: "+15551234567"},
	}
	if err := ReplacePatients(ctx, db, "prac1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	p, err := GetPatientByPhone(ctx, db, "prac1", "+15551234567")
	if err != nil {
		t.Fatalf("GetPatientByPhone: %v", err)
	}
	if p.PatientKey != "k1" {
		t.Fatalf("wrong patient: %+v", p)
	}

	if _, err := GetPatientByPhone(ctx, db, "prac1", "+15550000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetDoNotText(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []domain.Patient{{PatientKey: "k1", PracticeID: "prac1", ExternalPatientID: "e1"}}
	if err := ReplacePatients(ctx, db, "prac1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := SetDoNotText(ctx, db, "k1", true, "STOP", now); err != nil {
		t.Fatalf("SetDoNotText: %v", err)
	}
	p, err := GetPatient(ctx, db, "k1")
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if !p.DoNotText || p.DoNotTextSource != "STOP" || p.DoNotTextAt == nil {
		t.Fatalf("opt-out not recorded: %+v", p)
	}

	if err := SetDoNotText(ctx, db, "missing", true, "STOP", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing patient, got %v", err)
	}
}
