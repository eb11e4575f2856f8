// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Patient
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a patient is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dentalops/recallbridge/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ListPatients returns all patients for the practice, ordered by patient key
// for stable iteration. It returns an empty slice when the practice has no
// patients.
func ListPatients(ctx context.Context, db *gorm.DB, practiceID string) ([]domain.Patient, error) {
	var out []domain.Patient
	err := db.WithContext(ctx).
		Where("practice_id = ?", practiceID).
		Order("patient_key").
		Find(&out).Error
	return out, err
}

// GetPatient fetches a single patient by key, or ErrNotFound if missing.
func GetPatient(ctx context.Context, db *gorm.DB, patientKey string) (*domain.Patient, error) {
	var p domain.Patient
	if err := db.WithContext(ctx).First(&p, "patient_key = ?", patientKey).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPatientByPhone fetches the patient whose normalized phone matches, or
// ErrNotFound. Phones are not unique in theory (family plans); the first
// match by patient key order is returned.
func GetPatientByPhone(ctx context.Context, db *gorm.DB, practiceID, phoneE164 string) (*domain.Patient, error) {
	var p domain.Patient
	err := db.WithContext(ctx).
		Where("practice_id = ? AND phone_e164 = ?", practiceID, phoneE164).
		Order("patient_key").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePatient persists all fields of an existing patient row.
func SavePatient(ctx context.Context, db *gorm.DB, p *domain.Patient) error {
	return db.WithContext(ctx).Save(p).Error
}

// ReplacePatients rewrites the practice's patient collection wholesale inside
// one transaction. Import rebuilds derived collections rather than patching
// them, so a failed import never leaves a half-written patient set.
func ReplacePatients(ctx context.Context, db *gorm.DB, practiceID string, patients []domain.Patient) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("practice_id = ?", practiceID).Delete(&domain.Patient{}).Error; err != nil {
			return err
		}
		if len(patients) == 0 {
			return nil
		}
		return tx.CreateInBatches(patients, 200).Error
	})
}

// SetDoNotText flips the patient-level opt-out flag with its source and
// timestamp. Used by inbound STOP/START processing; STOP sets the flag, START
// is the explicit consent-restore path.
func SetDoNotText(ctx context.Context, db *gorm.DB, patientKey string, flag bool, source string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Patient{}).
		Where("patient_key = ?", patientKey).
		Updates(map[string]any{
			"do_not_text":        flag,
			"do_not_text_source": source,
			"do_not_text_at":     at,
			"updated_at":         at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPatients returns the total number of patients for the practice.
func CountPatients(ctx context.Context, db *gorm.DB, practiceID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Patient{}).
		Where("practice_id = ?", practiceID).
		Count(&total).Error
	return total, err
}
