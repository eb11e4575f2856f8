// Package domain defines the persistence models for the recall outreach
// pipeline: patients, the ephemeral outreach queue, durable touches, and the
// append-only event log. These types are mapped with GORM and form the core
// data layer of the application.
package domain

import "time"

// Patient is the durable per-person record built by import and refresh.
// Identity is patient_key, a deterministic digest of the practice id and the
// external source id, so re-imports always land on the same row.
//
// Fields:
//   - PatientKey: stable hex SHA-256 primary key.
//   - ExternalPatientID: id carried by the practice-management export.
//   - PhoneE164: normalized sending number, empty when no usable phone exists.
//   - HasSMSContact: derived flag, true when PhoneE164 is non-empty.
//   - DoNotText: one-way opt-out; set by STOP processing or manually, cleared
//     only by explicit consent-restore (START), never by import or refresh.
//   - ComplaintFlag: sticky complaint marker; once true, import never clears it.
//   - RecallDueDate: raw due date as imported (kept verbatim for audit).
//   - RecallStatus: derived OVERDUE/DUE/NOT_DUE/UNKNOWN snapshot.
type Patient struct {
	PatientKey        string     `json:"patient_key"         gorm:"type:char(64);primaryKey"`
	PracticeID        string     `json:"practice_id"         gorm:"type:varchar(64);not null;index"`
	ExternalPatientID string     `json:"external_patient_id" gorm:"type:varchar(64);not null"`
	FirstName         string     `json:"first_name"          gorm:"type:varchar(128)"`
	LastName          string     `json:"last_name"           gorm:"type:varchar(128)"`
	PhoneMobileRaw    string     `json:"phone_mobile_raw"    gorm:"type:varchar(32)"`
	PhoneHomeRaw      string     `json:"phone_home_raw"      gorm:"type:varchar(32)"`
	PhoneWorkRaw      string     `json:"phone_work_raw"      gorm:"type:varchar(32)"`
	PhoneOtherRaw     string     `json:"phone_other_raw"     gorm:"type:varchar(32)"`
	PhoneE164         string     `json:"phone_e164"          gorm:"type:varchar(16);index"`
	HasSMSContact     bool       `json:"has_sms_contact"`
	DoNotText         bool       `json:"do_not_text"`
	DoNotTextSource   string     `json:"do_not_text_source"  gorm:"type:varchar(16)"`
	DoNotTextAt       *time.Time `json:"do_not_text_at,omitempty"`
	ComplaintFlag     bool       `json:"complaint_flag"`
	RecallDueDate     string     `json:"recall_due_date"     gorm:"type:varchar(32)"`
	RecallStatus      string     `json:"recall_status"       gorm:"type:varchar(16)"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Patient.
func (Patient) TableName() string { return "patients" }

// QueueEntry is eligibility-at-a-point-in-time for one (campaign, touch type,
// patient) triple. The queue is a disposable derived view: every rebuild
// deletes all rows and rewrites them in one transaction, so downstream readers
// never observe a partially built queue.
type QueueEntry struct {
	ID               uint      `json:"id"                gorm:"primaryKey;autoIncrement"`
	CampaignID       string    `json:"campaign_id"       gorm:"type:varchar(64);not null;index:idx_queue_campaign"`
	TouchType        string    `json:"touch_type"        gorm:"type:varchar(16);not null;index:idx_queue_campaign"`
	PatientKey       string    `json:"patient_key"       gorm:"type:char(64);not null;index"`
	PhoneE164        string    `json:"phone_e164"        gorm:"type:varchar(16)"`
	Eligible         bool      `json:"eligible"`
	IneligibleReason string    `json:"ineligible_reason" gorm:"type:varchar(16)"`
	RecallDueDate    string    `json:"recall_due_date"   gorm:"type:varchar(32)"`
	RecallStatus     string    `json:"recall_status"     gorm:"type:varchar(16)"`
	DoNotText        bool      `json:"do_not_text"`
	ComputedAt       time.Time `json:"computed_at"`
}

// TableName returns the database table name for QueueEntry.
func (QueueEntry) TableName() string { return "queue_entries" }

// Touch is the durable record of one planned outreach attempt. Identity is a
// deterministic digest of (practice, campaign, patient, touch type), which
// makes touch creation idempotent: re-running the factory on the same inputs
// always resolves to the same row.
//
// State machine: READY → SENDING → {SENT | WOULD_SEND | ERROR | SKIPPED}.
// WOULD_SEND is the simulated terminal success reached in dry-run mode; a
// delivered status callback may upgrade it to SENT. Once a touch reaches a
// terminal success state it is never reverted by factory or claim runs; only
// webhook ingestion annotates it further.
type Touch struct {
	TouchID          string     `json:"touch_id"          gorm:"type:char(64);primaryKey"`
	PracticeID       string     `json:"practice_id"       gorm:"type:varchar(64);not null;index"`
	CampaignID       string     `json:"campaign_id"       gorm:"type:varchar(64);not null;index:idx_touch_campaign"`
	TouchType        string     `json:"touch_type"        gorm:"type:varchar(16);not null;index:idx_touch_campaign"`
	PatientKey       string     `json:"patient_key"       gorm:"type:char(64);not null;index"`
	PhoneE164        string     `json:"phone_e164"        gorm:"type:varchar(16);index"`
	Eligible         bool       `json:"eligible"`
	IneligibleReason string     `json:"ineligible_reason" gorm:"type:varchar(16)"`
	SendState        SendState  `json:"send_state"        gorm:"type:varchar(16);not null;index"`
	SendAttemptID    string     `json:"send_attempt_id"   gorm:"type:char(36)"`
	MsgSID           string     `json:"msg_sid"           gorm:"type:varchar(64);index"`
	ProviderStatus   string     `json:"provider_status"   gorm:"type:varchar(16)"`
	DryRun           bool       `json:"dry_run"`
	ErrorCode        string     `json:"error_code"        gorm:"type:varchar(64)"`
	ErrorMessage     string     `json:"error_message"     gorm:"type:varchar(512)"`
	PlannedAt        *time.Time `json:"planned_at,omitempty"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	UndeliveredAt    *time.Time `json:"undelivered_at,omitempty"`
	FailedAt         *time.Time `json:"failed_at,omitempty"`
	StopAt           *time.Time `json:"stop_at,omitempty"`
	ReplyAt          *time.Time `json:"reply_at,omitempty"`
	ClickCount       int        `json:"click_count"`
	PreviewCount     int        `json:"preview_count"`
	FirstClickedAt   *time.Time `json:"first_clicked_at,omitempty"`
	LastClickedAt    *time.Time `json:"last_clicked_at,omitempty"`
	LastInboundBody  string     `json:"last_inbound_body" gorm:"type:varchar(160)"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Touch.
func (Touch) TableName() string { return "touches" }

// EventLogEntry is one append-only audit record. Rows are immutable once
// written; webhook-origin entries also carry the dedupe key used to discard
// exact replays of the same provider callback.
type EventLogEntry struct {
	EventID     string    `json:"event_id"     gorm:"type:char(36);primaryKey"`
	EventType   EventType `json:"event_type"   gorm:"type:varchar(32);not null;index"`
	RunID       string    `json:"run_id"       gorm:"type:char(36);not null;index"`
	OccurredAt  time.Time `json:"occurred_at"  gorm:"not null;index"`
	PracticeID  string    `json:"practice_id"  gorm:"type:varchar(64)"`
	Notes       string    `json:"notes"        gorm:"type:varchar(512)"`
	PayloadJSON string    `json:"payload_json" gorm:"type:text"`
	DedupeKey   string    `json:"dedupe_key"   gorm:"type:varchar(512);index"`
}

// TableName returns the database table name for EventLogEntry.
func (EventLogEntry) TableName() string { return "event_log" }
