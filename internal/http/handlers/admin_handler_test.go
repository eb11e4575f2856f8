package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/repo"
	"github.com/dentalops/recallbridge/internal/services"
)

// stubReads satisfies AdminReads with overridable function fields; nil fields
// behave like an empty store.
type stubReads struct {
	count   func(ctx context.Context, practiceID string, state domain.SendState) (int64, error)
	list    func(ctx context.Context, practiceID string, state domain.SendState, offset, limit int) ([]domain.Touch, error)
	patient func(ctx context.Context, patientKey string) (*domain.Patient, error)
	events  func(ctx context.Context, practiceID string, limit int) ([]domain.EventLogEntry, error)
}

func (s stubReads) CountTouches(ctx context.Context, practiceID string, state domain.SendState) (int64, error) {
	if s.count == nil {
		return 0, nil
	}
	return s.count(ctx, practiceID, state)
}

func (s stubReads) ListTouchesPage(ctx context.Context, practiceID string, state domain.SendState, offset, limit int) ([]domain.Touch, error) {
	if s.list == nil {
		return nil, nil
	}
	return s.list(ctx, practiceID, state, offset, limit)
}

func (s stubReads) GetPatient(ctx context.Context, patientKey string) (*domain.Patient, error) {
	if s.patient == nil {
		return nil, repo.ErrNotFound
	}
	return s.patient(ctx, patientKey)
}

func (s stubReads) ListRecentEvents(ctx context.Context, practiceID string, limit int) ([]domain.EventLogEntry, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events(ctx, practiceID, limit)
}

func getJSON(t *testing.T, r *gin.Engine, url string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return w
}

// ---------- touches ----------

func TestListTouches_PaginationAndFilter(t *testing.T) {
	var gotState domain.SendState
	var gotOffset, gotLimit int
	reads := stubReads{
		count: func(_ context.Context, practiceID string, state domain.SendState) (int64, error) {
			if practiceID != "prac-1" {
				t.Fatalf("practice: %q", practiceID)
			}
			return 45, nil
		},
		list: func(_ context.Context, _ string, state domain.SendState, offset, limit int) ([]domain.Touch, error) {
			gotState, gotOffset, gotLimit = state, offset, limit
			return []domain.Touch{{TouchID: "t-1"}, {TouchID: "t-2"}}, nil
		},
	}
	r := newRig(stubWebhookSvc{}, stubStatsSvc{}, reads)

	var resp ListTouchesResponse
	w := getJSON(t, r, "/api/v1/touches?page=2&page_size=10&state=ready", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("code: got %d body %s", w.Code, w.Body.String())
	}
	if gotState != domain.SendStateReady {
		t.Fatalf("state filter: got %q", gotState)
	}
	if gotOffset != 10 || gotLimit != 10 {
		t.Fatalf("paging: offset=%d limit=%d", gotOffset, gotLimit)
	}
	p := resp.Pagination
	if p.Page != 2 || p.PageSize != 10 || p.Total != 45 || p.TotalPages != 5 || !p.HasNext {
		t.Fatalf("pagination: %+v", p)
	}
	if len(resp.Touches) != 2 || resp.Touches[0].TouchID != "t-1" {
		t.Fatalf("touches: %+v", resp.Touches)
	}
}

func TestListTouches_UnknownStateRejected(t *testing.T) {
	r := newRig(stubWebhookSvc{}, stubStatsSvc{}, stubReads{})

	var er ErrorResponse
	w := getJSON(t, r, "/api/v1/touches?state=BOGUS", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code: got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Code != ErrCodeBadRequest {
		t.Fatalf("error code: %q", er.Code)
	}
}

func TestListTouches_ClampsPageInputs(t *testing.T) {
	var gotOffset, gotLimit int
	reads := stubReads{
		list: func(_ context.Context, _ string, _ domain.SendState, offset, limit int) ([]domain.Touch, error) {
			gotOffset, gotLimit = offset, limit
			return nil, nil
		},
	}
	r := newRig(stubWebhookSvc{}, stubStatsSvc{}, reads)

	w := getJSON(t, r, "/api/v1/touches?page=-3&page_size=9999", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code: got %d", w.Code)
	}
	if gotOffset != 0 || gotLimit != 200 {
		t.Fatalf("clamp: offset=%d limit=%d", gotOffset, gotLimit)
	}
}

// ---------- patients ----------

func TestGetPatient_FoundAndMissing(t *testing.T) {
	reads := stubReads{
		patient: func(_ context.Context, key string) (*domain.Patient, error) {
			if key == "pk-1" {
				return &domain.Patient{PatientKey: "pk-1", FirstName: "Ana"}, nil
			}
			return nil, repo.ErrNotFound
		},
	}
	r := newRig(stubWebhookSvc{}, stubStatsSvc{}, reads)

	var p domain.Patient
	w := getJSON(t, r, "/api/v1/patients/pk-1", &p)
	if w.Code != http.StatusOK || p.FirstName != "Ana" {
		t.Fatalf("found: code=%d patient=%+v", w.Code, p)
	}

	w = getJSON(t, r, "/api/v1/patients/pk-404", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing: code=%d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Code != ErrCodeNotFound {
		t.Fatalf("error code: %q", er.Code)
	}
}

// ---------- stats ----------

func TestGetStats_DefaultsAndOverrides(t *testing.T) {
	var gotCampaign, gotType string
	ss := stubStatsSvc{
		compute: func(_ context.Context, campaignID, touchType string) (services.Stats, error) {
			gotCampaign, gotType = campaignID, touchType
			return services.Stats{PatientsTotal: 7}, nil
		},
	}
	r := newRig(stubWebhookSvc{}, ss, stubReads{})

	var st services.Stats
	w := getJSON(t, r, "/api/v1/stats", &st)
	if w.Code != http.StatusOK || st.PatientsTotal != 7 {
		t.Fatalf("code=%d stats=%+v", w.Code, st)
	}
	if gotCampaign != "camp-1" || gotType != "T1" {
		t.Fatalf("defaults: campaign=%q type=%q", gotCampaign, gotType)
	}

	getJSON(t, r, "/api/v1/stats?campaign_id=camp-9&touch_type=T2", &st)
	if gotCampaign != "camp-9" || gotType != "T2" {
		t.Fatalf("overrides: campaign=%q type=%q", gotCampaign, gotType)
	}
}

// ---------- events ----------

func TestListEvents_LimitClamped(t *testing.T) {
	var gotLimit int
	reads := stubReads{
		events: func(_ context.Context, _ string, limit int) ([]domain.EventLogEntry, error) {
			gotLimit = limit
			return []domain.EventLogEntry{{EventType: domain.EventImportPass}}, nil
		},
	}
	r := newRig(stubWebhookSvc{}, stubStatsSvc{}, reads)

	var resp ListEventsResponse
	w := getJSON(t, r, "/api/v1/events?limit=99999", &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("code: got %d", w.Code)
	}
	if gotLimit != 500 {
		t.Fatalf("limit clamp: got %d", gotLimit)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("events: %+v", resp.Events)
	}
}
