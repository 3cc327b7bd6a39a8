package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"outreach-platform/internal/auth"
	"outreach-platform/internal/batch"
	"outreach-platform/internal/calls"
	"outreach-platform/internal/rbac"
	"outreach-platform/internal/reporting"
	"outreach-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Batches *batch.Processor
	Calls   calls.Repository
	Reports *reporting.Service
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.WorkspaceID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.WorkspaceID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Batches ---

type startBatchRequest struct {
	EmailScheduleTime time.Time `json:"email_schedule_time"`
	CallScheduleTime  time.Time `json:"call_schedule_time"`

	// CaseIDs narrows the run to a subset of the eligible cases. Empty means
	// every eligible case.
	CaseIDs []string `json:"case_ids,omitempty"`
}

// StartBatch selects eligible cases, persists a batch, and kicks off
// processing in the background. The response is immediate; callers poll
// GetBatch for progress.
func (h Handlers) StartBatch(c *gin.Context) {
	if h.Batches == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "batches not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}

	var req startBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.EmailScheduleTime.IsZero() || req.CallScheduleTime.IsZero() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "email_schedule_time and call_schedule_time required"})
		return
	}

	eligible, err := h.Batches.EligibleCases(c.Request.Context(), workspaceID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "eligible case lookup failed"})
		return
	}
	if len(req.CaseIDs) > 0 {
		eligible = filterCases(eligible, req.CaseIDs)
	}
	if len(eligible) == 0 {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "no eligible cases"})
		return
	}

	b, err := h.Batches.StartBatch(c.Request.Context(), workspaceID, eligible, req.EmailScheduleTime, req.CallScheduleTime)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "batch creation failed"})
		return
	}

	log := logger.FromGin(c)
	opts := batch.Options{
		BatchID:           b.ID,
		EmailScheduleTime: req.EmailScheduleTime,
		CallScheduleTime:  req.CallScheduleTime,
	}
	// Detached context: processing outlives the HTTP request.
	go func() {
		if _, err := h.Batches.ProcessBatch(context.Background(), eligible, opts); err != nil {
			log.Error("batch processing aborted", "batch_id", b.ID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"batch_id": b.ID, "total_cases": b.TotalCases})
}

// CancelBatch requests cooperative cancellation of a running batch.
func (h Handlers) CancelBatch(c *gin.Context) {
	if h.Batches == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "batches not configured"})
		return
	}
	b, ok := h.loadWorkspaceBatch(c)
	if !ok {
		return
	}
	if b.Status.Terminal() {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "batch already finished"})
		return
	}
	h.Batches.CancelProcessing(b.ID)
	c.JSON(http.StatusAccepted, gin.H{"batch_id": b.ID, "status": "cancellation_requested"})
}

// GetBatch returns batch progress and per-case items.
func (h Handlers) GetBatch(c *gin.Context) {
	if h.Batches == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "batches not configured"})
		return
	}
	b, ok := h.loadWorkspaceBatch(c)
	if !ok {
		return
	}
	_, items, err := h.Batches.GetBatch(c.Request.Context(), b.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "batch lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch": batchView(b), "items": items})
}

// ListEligible returns cases a new batch would cover.
func (h Handlers) ListEligible(c *gin.Context) {
	if h.Batches == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "batches not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	eligible, err := h.Batches.EligibleCases(c.Request.Context(), workspaceID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "eligible case lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": eligible, "count": len(eligible)})
}

// --- Calls ---

// ListCalls returns workspace call records in a time range
// (default: the last 24 hours).
func (h Handlers) ListCalls(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	rng, err := parseRange(c, 24*time.Hour)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	records, err := h.Calls.ListByWorkspace(c.Request.Context(), workspaceID, rng.From, rng.To)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": records, "count": len(records)})
}

// --- Reports ---

func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reports not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	rng, err := parseRange(c, 7*24*time.Hour)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		WorkspaceID: workspaceID,
		Range:       rng,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reporting.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "calls summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) SpendSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reports not configured"})
		return
	}
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	rng, err := parseRange(c, 7*24*time.Hour)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Reports.SpendSummary(c.Request.Context(), reporting.SpendSummaryRequest{
		WorkspaceID: workspaceID,
		Range:       rng,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reporting.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": "spend summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- helpers ---

// loadWorkspaceBatch fetches the :id batch and enforces workspace ownership.
// Foreign batches 404 rather than 403 to avoid existence leaks.
func (h Handlers) loadWorkspaceBatch(c *gin.Context) (batch.Batch, bool) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return batch.Batch{}, false
	}
	id := c.Param("id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "batch id required"})
		return batch.Batch{}, false
	}
	b, _, err := h.Batches.GetBatch(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, batch.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "batch lookup failed"})
		}
		return batch.Batch{}, false
	}
	if b.WorkspaceID != workspaceID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return batch.Batch{}, false
	}
	return b, true
}

func parseRange(c *gin.Context, span time.Duration) (reporting.TimeRange, error) {
	now := time.Now().UTC()
	rng := reporting.TimeRange{From: now.Add(-span), To: now}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, errors.New("from must be RFC3339")
		}
		rng.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, errors.New("to must be RFC3339")
		}
		rng.To = t
	}
	if !rng.To.After(rng.From) {
		return reporting.TimeRange{}, errors.New("to must be after from")
	}
	return rng, nil
}

func filterCases(cases []batch.EligibleCase, ids []string) []batch.EligibleCase {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]batch.EligibleCase, 0, len(ids))
	for _, c := range cases {
		if want[c.CaseID] {
			out = append(out, c)
		}
	}
	return out
}

func batchView(b batch.Batch) gin.H {
	return gin.H{
		"id":               b.ID,
		"status":           b.Status,
		"total_cases":      b.TotalCases,
		"processed_cases":  b.ProcessedCases,
		"successful_cases": b.SuccessfulCases,
		"failed_cases":     b.FailedCases,
		"started_at":       b.StartedAt,
		"completed_at":     b.CompletedAt,
		"cancelled_at":     b.CancelledAt,
		"error_summary":    b.ErrorSummary,
	}
}

// Convenience middleware bundles.

func RequireWorkspaceAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireWorkspace(), rbac.RequireAnyRole(roles...)}
}
