package services

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dentalops/recallbridge/internal/config"
	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/repo"
)

// newTestDB opens a unique in-memory database per test to avoid schema
// leakage across tests, and migrates the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// testPractice is the fixture practice used across service tests.
func testPractice() config.PracticeConfig {
	return config.PracticeConfig{
		PracticeID:          "prac-1",
		PracticeName:        "Bright Smiles Dental",
		RecallDueWindowDays: 30,
		ActiveCampaignID:    "camp-1",
		KillSwitch:          config.KillSwitchOff,
		Mode:                config.ModeDryRun,
		OfficePhone:         "(301) 555-0100",
	}
}

// seedPatient inserts a patient with sensible defaults, overridable via fn.
func seedPatient(t *testing.T, db *gorm.DB, externalID string, fn func(*domain.Patient)) *domain.Patient {
	t.Helper()
	p := &domain.Patient{
		PatientKey:        domain.PatientKeyFor("prac-1", externalID),
		PracticeID:        "prac-1",
		ExternalPatientID: externalID,
		FirstName:         "Pat",
		LastName:          "Example",
		PhoneE164:         "+13015550199",
		HasSMSContact:     true,
		RecallDueDate:     time.Now().AddDate(0, 0, -10).Format("2006-01-02"),
		RecallStatus:      domain.RecallOverdue,
	}
	if fn != nil {
		fn(p)
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	return p
}

// seedTouch inserts a touch for the given patient, overridable via fn.
func seedTouch(t *testing.T, db *gorm.DB, p *domain.Patient, fn func(*domain.Touch)) *domain.Touch {
	t.Helper()
	tch := &domain.Touch{
		TouchID:    domain.TouchIDFor("prac-1", "camp-1", p.PatientKey, "T1"),
		PracticeID: "prac-1",
		CampaignID: "camp-1",
		TouchType:  "T1",
		PatientKey: p.PatientKey,
		PhoneE164:  p.PhoneE164,
		Eligible:   true,
		SendState:  domain.SendStateReady,
	}
	if fn != nil {
		fn(tch)
	}
	if err := db.Create(tch).Error; err != nil {
		t.Fatalf("seed touch: %v", err)
	}
	return tch
}
