// Read-only admin HTTP handlers.
//
// This file exposes the operator-facing read API:
//   - GET /api/v1/touches        (list, paginated, optional state filter)
//   - GET /api/v1/patients/{key} (single patient)
//   - GET /api/v1/stats          (corpus/queue/touch counters)
//   - GET /api/v1/events         (recent audit log entries)
//
// Handlers are transport-thin: they validate input, call the read layer, and
// translate results into HTTP responses. All admin endpoints are read-only;
// every mutation in the system goes through the CLI pipeline commands or the
// provider webhook.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dentalops/recallbridge/internal/domain"
	"github.com/dentalops/recallbridge/internal/repo"
	"github.com/dentalops/recallbridge/internal/utils"
)

// AdminReads defines the persistence reads consumed by the admin handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AdminReads interface {
	// CountTouches counts touches for the practice, optionally by state.
	CountTouches(ctx context.Context, practiceID string, state domain.SendState) (int64, error)
	// ListTouchesPage returns one page of touches, newest first.
	ListTouchesPage(ctx context.Context, practiceID string, state domain.SendState, offset, limit int) ([]domain.Touch, error)
	// GetPatient fetches a patient by key, or repo.ErrNotFound.
	GetPatient(ctx context.Context, patientKey string) (*domain.Patient, error)
	// ListRecentEvents returns the newest audit log entries.
	ListRecentEvents(ctx context.Context, practiceID string, limit int) ([]domain.EventLogEntry, error)
}

//
// DTOs
//

// Pagination carries page metadata on list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListTouchesResponse wraps a page of touches and pagination information.
type ListTouchesResponse struct {
	Touches    []domain.Touch `json:"touches"`
	Pagination Pagination     `json:"pagination"`
}

// ListEventsResponse wraps recent audit log entries.
type ListEventsResponse struct {
	Events []domain.EventLogEntry `json:"events"`
}

//
// Helpers
//

// clampPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 200
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// parseSendState validates an optional state filter. Empty input means no
// filter; anything else must be one of the known send states.
func parseSendState(raw string) (domain.SendState, bool) {
	s := domain.SendState(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case "", domain.SendStateReady, domain.SendStateSending, domain.SendStateSent,
		domain.SendStateWouldSend, domain.SendStateError, domain.SendStateSkipped:
		return s, true
	}
	return "", false
}

//
// Handlers
//

// ListTouches handles GET /api/v1/touches.
//
// Query parameters:
//   - page, page_size: pagination (defaults 1/20, page_size capped at 200)
//   - state: optional send-state filter (READY, SENDING, SENT, ...)
func (h *Handlers) ListTouches(c *gin.Context) {
	state, okState := parseSendState(c.Query("state"))
	if !okState {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown state filter")
		return
	}
	page, pageSize := clampPagination(c)

	ctx := c.Request.Context()
	total, err := h.reads.CountTouches(ctx, h.practiceID, state)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not count touches")
		return
	}
	touches, err := h.reads.ListTouchesPage(ctx, h.practiceID, state, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list touches")
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListTouchesResponse{
		Touches: touches,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetPatient handles GET /api/v1/patients/:key.
func (h *Handlers) GetPatient(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing patient key")
		return
	}
	p, err := h.reads.GetPatient(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "patient not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load patient")
		return
	}
	ok(c, http.StatusOK, p)
}

// GetStats handles GET /api/v1/stats.
//
// Query parameters:
//   - campaign_id: optional override of the active campaign
//   - touch_type:  defaults to T1
func (h *Handlers) GetStats(c *gin.Context) {
	campaignID := strings.TrimSpace(c.Query("campaign_id"))
	if campaignID == "" {
		campaignID = h.campaignID
	}
	touchType := strings.TrimSpace(c.Query("touch_type"))
	if touchType == "" {
		touchType = "T1"
	}
	st, err := h.statsSvc.Compute(c.Request.Context(), campaignID, touchType)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not compute stats")
		return
	}
	ok(c, http.StatusOK, st)
}

// ListEvents handles GET /api/v1/events.
//
// Query parameters:
//   - limit: number of newest entries to return (default 100, capped at 500)
func (h *Handlers) ListEvents(c *gin.Context) {
	const (
		defaultLimit = 100
		maxLimit     = 500
	)
	limit := utils.AtoiDefault(c.Query("limit"), defaultLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	events, err := h.reads.ListRecentEvents(c.Request.Context(), h.practiceID, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list events")
		return
	}
	ok(c, http.StatusOK, ListEventsResponse{Events: events})
}
