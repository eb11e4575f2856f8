// Package services defines the business logic for recall outreach: queue
// building, touch creation, the claim/send pipeline, provider webhook
// ingestion, and corpus statistics. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrKillSwitchOn is returned when KILL_SWITCH=ON blocks a mutating
	// send-path operation. It always fires before any row is written.
	ErrKillSwitchOn = errors.New("kill switch is on")

	// ErrNoCampaign is returned when an operation requires an active
	// campaign id and none is configured.
	ErrNoCampaign = errors.New("no active campaign configured")

	// ErrNoPatients is returned by queue building when the patient table
	// is empty for the practice, which almost always means the import
	// step never ran.
	ErrNoPatients = errors.New("no patients loaded")

	// ErrLockBusy is returned when the practice-scoped send lock could not
	// be acquired within the bounded wait.
	ErrLockBusy = errors.New("practice lock busy")

	// ErrTouchNotFound indicates that the requested touch does not exist.
	ErrTouchNotFound = errors.New("touch not found")

	// ErrPatientNotFound indicates that the requested patient does not exist.
	ErrPatientNotFound = errors.New("patient not found")

	// ErrInvariantsFailed is returned when one or more post-run data-quality
	// assertions did not hold. The failing codes are in the error message and
	// in the event log.
	ErrInvariantsFailed = errors.New("invariant checks failed")
)
