package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"outreach-platform/internal/auth"
	"outreach-platform/internal/batch"
	"outreach-platform/internal/calls"
	"outreach-platform/internal/rbac"
	"outreach-platform/internal/scheduler"

	"github.com/gin-gonic/gin"
)

type fixture struct {
	handlers Handlers
	batches  *batch.Processor
	batchDB  *batch.MemoryRepo
	callDB   *calls.MemoryRepo
	router   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	callDB := calls.NewMemoryRepo()
	queue := scheduler.NewMemory()
	callSvc := calls.NewService(callDB, queue)

	batchDB := batch.NewMemoryRepo()
	src := &batch.MemoryCaseSource{Cases: []batch.Case{
		{CaseID: "case-1", WorkspaceID: "ws-1", BusinessState: "ready_for_outreach", Phone: "+15550001111"},
		{CaseID: "case-2", WorkspaceID: "ws-1", BusinessState: "ready_for_outreach", Phone: "+15550002222"},
		{CaseID: "stale", WorkspaceID: "ws-1", BusinessState: "in_treatment", Phone: "+15550003333"},
	}}
	batches := batch.NewProcessor(batchDB, &batch.CallOrchestrator{Calls: callSvc}, src)

	h := Handlers{
		Batches: batches,
		Calls:   callDB,
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := auth.WithIdentity(context.Background(), "u-1", "ws-1", rbac.RoleOwner)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.POST("/v1/batches", h.StartBatch)
	r.POST("/v1/batches/:id/cancel", h.CancelBatch)
	r.GET("/v1/batches/:id", h.GetBatch)
	r.GET("/v1/cases/eligible", h.ListEligible)
	r.GET("/v1/calls", h.ListCalls)

	return &fixture{handlers: h, batches: batches, batchDB: batchDB, callDB: callDB, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestListEligible(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/v1/cases/eligible", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 eligible cases, got %d", resp.Count)
	}
}

func TestStartBatch_AcceptsAndProcesses(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"email_schedule_time": time.Now().Add(time.Hour).Format(time.RFC3339),
		"call_schedule_time":  time.Now().Add(2 * time.Hour).Format(time.RFC3339),
	}
	w := f.do(t, http.MethodPost, "/v1/batches", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		BatchID    string `json:"batch_id"`
		TotalCases int    `json:"total_cases"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.BatchID == "" || resp.TotalCases != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	b := waitForTerminal(t, f, resp.BatchID)
	if b.Status != batch.BatchStatusCompleted {
		t.Fatalf("expected completed batch, got %s (%+v)", b.Status, b)
	}
	if b.SuccessfulCases != 2 {
		t.Fatalf("expected 2 successes, got %+v", b)
	}
}

func TestStartBatch_NoEligibleCases(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"email_schedule_time": time.Now().Add(time.Hour).Format(time.RFC3339),
		"call_schedule_time":  time.Now().Add(2 * time.Hour).Format(time.RFC3339),
		"case_ids":            []string{"does-not-exist"},
	}
	w := f.do(t, http.MethodPost, "/v1/batches", body)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStartBatch_RequiresScheduleTimes(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/v1/batches", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetBatch_WorkspaceScoped(t *testing.T) {
	f := newFixture(t)
	seedBatch(t, f, "b-own", "ws-1")
	seedBatch(t, f, "b-foreign", "ws-2")

	if w := f.do(t, http.MethodGet, "/v1/batches/b-own", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for own batch, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/batches/b-foreign", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign batch, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/v1/batches/missing", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown batch, got %d", w.Code)
	}
}

func TestCancelBatch(t *testing.T) {
	f := newFixture(t)
	seedBatch(t, f, "b-run", "ws-1")

	w := f.do(t, http.MethodPost, "/v1/batches/b-run/cancel", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCancelBatch_AlreadyFinished(t *testing.T) {
	f := newFixture(t)
	b := seedBatch(t, f, "b-done", "ws-1")
	now := time.Now().UTC()
	b.Status = batch.BatchStatusCompleted
	b.CompletedAt = &now
	if err := f.batchDB.UpdateBatch(context.Background(), b); err != nil {
		t.Fatalf("update batch: %v", err)
	}

	w := f.do(t, http.MethodPost, "/v1/batches/b-done/cancel", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListCalls(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	for i, ws := range []string{"ws-1", "ws-1", "ws-2"} {
		rec := calls.CallRecord{
			ID:          fmt.Sprintf("rec-%d", i),
			WorkspaceID: ws,
			CaseID:      "case",
			Status:      calls.CallStatusCompleted,
			CreatedAt:   now,
		}
		if _, err := f.callDB.Create(context.Background(), rec); err != nil {
			t.Fatalf("seed call: %v", err)
		}
	}

	w := f.do(t, http.MethodGet, "/v1/calls", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 workspace calls, got %d", resp.Count)
	}
}

func TestListCalls_BadRange(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/v1/calls?from=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func seedBatch(t *testing.T, f *fixture, id, workspaceID string) batch.Batch {
	t.Helper()
	b := batch.Batch{
		ID:          id,
		WorkspaceID: workspaceID,
		Status:      batch.BatchStatusProcessing,
		TotalCases:  1,
	}
	if _, err := f.batchDB.CreateBatch(context.Background(), b); err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	return b
}

func waitForTerminal(t *testing.T, f *fixture, batchID string) batch.Batch {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b, err := f.batchDB.GetBatch(context.Background(), batchID)
		if err == nil && b.Status.Terminal() {
			return b
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("batch %s never reached a terminal status", batchID)
	return batch.Batch{}
}
