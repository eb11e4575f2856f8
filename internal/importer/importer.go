// Package importer ingests practice-management patient exports (CSV or XLSX)
// into the patient table and recomputes the derived fields. Import resolves
// columns by header name, never by position, and treats a duplicate header as
// a fatal data error: a malformed export must fail loudly rather than load
// shifted columns. Opt-out and complaint flags are sticky across imports; an
// export can never silently re-subscribe a patient.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/dentalops/recallbridge/internal/config"
	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/repo"
	"github.com/dentalops/recallbridge/internal/sysutil"
)

// ErrEmptyFile is returned when the export has no data rows.
var ErrEmptyFile = errors.New("export file has no data rows")

// ErrMissingPatientID is returned when the export lacks the patient id column.
var ErrMissingPatientID = errors.New("export is missing the patient id column")

// Summary reports the outcome of one import.
type Summary struct {
	RunID   string `json:"run_id"`
	Parsed  int    `json:"parsed"`
	Inserts int    `json:"inserts"`
	Updates int    `json:"updates"`
	Rows    int    `json:"rows"`
}

// RefreshSummary reports the outcome of one derived-field refresh.
type RefreshSummary struct {
	RunID     string `json:"run_id"`
	Refreshed int    `json:"refreshed"`
	WithPhone int    `json:"with_phone"`
}

// Importer loads patient exports and derives per-patient fields.
type Importer struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Practice carries the per-practice settings.
	Practice config.PracticeConfig
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// New constructs an Importer.
func New(db *gorm.DB, practice config.PracticeConfig) *Importer {
	return &Importer{DB: db, Practice: practice, Now: time.Now}
}

// ImportFile ingests the export at path, dispatching on the file extension
// (.csv or .xlsx). The patient table is rewritten wholesale in a single
// transaction; a failed import leaves the previous corpus intact.
func (im *Importer) ImportFile(ctx context.Context, path string) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	_ = repo.AppendEvent(ctx, im.DB, domain.EventImportStart, sum.RunID, im.Practice.PracticeID,
		"import started", map[string]string{"file": filepath.Base(path)}, "")

	var (
		header []string
		rows   [][]string
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		header, rows, err = readXLSX(path)
	default:
		header, rows, err = readCSV(path)
	}
	if err != nil {
		_ = repo.AppendEvent(ctx, im.DB, domain.EventImportFail, sum.RunID, im.Practice.PracticeID, err.Error(), nil, "")
		return sum, err
	}

	if err := im.importRows(ctx, &sum, header, rows); err != nil {
		_ = repo.AppendEvent(ctx, im.DB, domain.EventImportFail, sum.RunID, im.Practice.PracticeID, err.Error(), nil, "")
		return sum, err
	}
	_ = repo.AppendEvent(ctx, im.DB, domain.EventImportPass, sum.RunID, im.Practice.PracticeID, "import complete", sum, "")
	return sum, nil
}

func (im *Importer) importRows(ctx context.Context, sum *Summary, header []string, rows [][]string) error {
	hmap, err := headerMap(header)
	if err != nil {
		return err
	}
	if _, ok := hmap["patient_id"]; !ok {
		return ErrMissingPatientID
	}
	if len(rows) == 0 {
		return ErrEmptyFile
	}

	existing, err := repo.ListPatients(ctx, im.DB, im.Practice.PracticeID)
	if err != nil {
		return err
	}
	byKey := make(map[string]*domain.Patient, len(existing))
	for i := range existing {
		byKey[existing[i].PatientKey] = &existing[i]
	}

	now := im.Now()
	merged := make(map[string]domain.Patient, len(rows))
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		sum.Parsed++

		externalID := strings.TrimSpace(cell(row, hmap, "patient_id"))
		if externalID == "" {
			continue
		}
		key := domain.PatientKeyFor(im.Practice.PracticeID, externalID)

		p := domain.Patient{
			PatientKey:        key,
			PracticeID:        im.Practice.PracticeID,
			ExternalPatientID: externalID,
			FirstName:         strings.TrimSpace(cell(row, hmap, "first_name")),
			LastName:          strings.TrimSpace(cell(row, hmap, "last_name")),
			PhoneMobileRaw:    strings.TrimSpace(cell(row, hmap, "mobile_phone")),
			PhoneHomeRaw:      strings.TrimSpace(cell(row, hmap, "home_phone")),
			PhoneWorkRaw:      strings.TrimSpace(cell(row, hmap, "work_phone")),
			PhoneOtherRaw:     strings.TrimSpace(cell(row, hmap, "other_phone")),
			RecallDueDate:     strings.TrimSpace(cell(row, hmap, "recall_due_date")),
			UpdatedAt:         now,
		}

		// Sticky flags and consent trail survive every import.
		if prev, ok := byKey[key]; ok {
			p.CreatedAt = prev.CreatedAt
			if prev.DoNotText {
				p.DoNotText = true
				p.DoNotTextSource = prev.DoNotTextSource
				p.DoNotTextAt = prev.DoNotTextAt
			}
			if prev.ComplaintFlag {
				p.ComplaintFlag = true
			}
			sum.Updates++
		} else {
			p.CreatedAt = now
			sum.Inserts++
		}

		if _, dup := merged[key]; !dup {
			order = append(order, key)
		}
		merged[key] = p
	}

	patients := make([]domain.Patient, 0, len(merged))
	for _, key := range order {
		patients = append(patients, merged[key])
	}
	sum.Rows = len(patients)

	return repo.ReplacePatients(ctx, im.DB, im.Practice.PracticeID, patients)
}

// Refresh recomputes the derived patient fields: phone_e164 from the raw
// phone columns in priority order (mobile, home, work, other), the SMS
// contact flag, and the recall status against the configured window.
func (im *Importer) Refresh(ctx context.Context) (RefreshSummary, error) {
	sum := RefreshSummary{RunID: uuid.NewString()}
	_ = repo.AppendEvent(ctx, im.DB, domain.EventRefreshStart, sum.RunID, im.Practice.PracticeID, "refresh started", nil, "")

	patients, err := repo.ListPatients(ctx, im.DB, im.Practice.PracticeID)
	if err != nil {
		_ = repo.AppendEvent(ctx, im.DB, domain.EventRefreshFail, sum.RunID, im.Practice.PracticeID, err.Error(), nil, "")
		return sum, err
	}

	now := im.Now()
	for i := range patients {
		p := &patients[i]
		phone := sysutil.FirstNonEmpty(
			domain.NormalizePhone(p.PhoneMobileRaw),
			domain.NormalizePhone(p.PhoneHomeRaw),
			domain.NormalizePhone(p.PhoneWorkRaw),
			domain.NormalizePhone(p.PhoneOtherRaw),
		)
		p.PhoneE164 = phone
		p.HasSMSContact = phone != ""
		p.RecallStatus = domain.ComputeRecallStatus(p.RecallDueDate, im.Practice.RecallDueWindowDays, now)
		p.UpdatedAt = now
		if err := repo.SavePatient(ctx, im.DB, p); err != nil {
			_ = repo.AppendEvent(ctx, im.DB, domain.EventRefreshFail, sum.RunID, im.Practice.PracticeID, err.Error(), nil, "")
			return sum, err
		}
		sum.Refreshed++
		if phone != "" {
			sum.WithPhone++
		}
	}

	_ = repo.AppendEvent(ctx, im.DB, domain.EventRefreshPass, sum.RunID, im.Practice.PracticeID,
		fmt.Sprintf("refreshed %d patients", sum.Refreshed), sum, "")
	return sum, nil
}

// headerMap resolves normalized header names to column indexes. A duplicate
// header means the export is malformed and the import must not proceed.
func headerMap(header []string) (map[string]int, error) {
	m := make(map[string]int, len(header))
	for i, h := range header {
		norm := normalizeHeader(h)
		if norm == "" {
			continue
		}
		if _, dup := m[norm]; dup {
			return nil, fmt.Errorf("duplicate header: %s", norm)
		}
		m[norm] = i
	}
	return m, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

func cell(row []string, hmap map[string]int, name string) string {
	idx, ok := hmap[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrEmptyFile
		}
		return nil, nil, err
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return header, rows, nil
}

func readXLSX(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptyFile
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, ErrEmptyFile
	}
	return all[0], all[1:], nil
}
