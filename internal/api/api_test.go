package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/EduConnect/TutorHub/internal/approval"
	"github.com/EduConnect/TutorHub/internal/broadcast"
	"github.com/EduConnect/TutorHub/internal/messaging"
	"github.com/EduConnect/TutorHub/internal/models"
	"github.com/EduConnect/TutorHub/internal/store"
)

func newTestServer() (*Server, *store.InMemoryStore, *messaging.MemoryService) {
	st := store.NewInMemoryStore()
	svc := messaging.NewMemoryService()
	workflow := approval.NewWorkflow(st, svc)
	broadcaster := broadcast.NewBroadcaster(svc, st, broadcast.WithSendInterval(time.Millisecond))
	srv := NewServer(st, workflow, broadcaster, nil, WithAdmins([]string{"admin1"}))
	return srv, st, svc
}

func adminRequest(method, path string, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set(AdminHeader, "admin1")
	return req
}

func TestAdminOnlyMiddleware(t *testing.T) {
	srv, _, _ := newTestServer()
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/records", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("missing admin header: status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
	req.Header.Set(AdminHeader, "intruder")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("unknown admin: status = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodGet, "/v1/records", ""))
	if rec.Code != http.StatusOK {
		t.Errorf("allow-listed admin: status = %d, want 200", rec.Code)
	}
}

func TestHealthEndpointIsOpen(t *testing.T) {
	srv, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestPendingAndDecision(t *testing.T) {
	srv, st, svc := newTestServer()
	router := srv.Router()
	st.InsertTutor(models.Tutor{ID: "r1", Identity: "u1", Name: "Jane Doe", Subjects: []string{"Physics"}, Status: models.StatusPending, CreatedAt: time.Now()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodGet, "/v1/records/pending", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("pending status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Jane Doe") {
		t.Errorf("pending body missing record: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodPost, "/v1/records/r1/decision", `{"decision":"approve"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("decision status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	stored, _ := st.GetTutorByID("r1")
	if stored.Status != models.StatusApproved {
		t.Errorf("stored status = %s, want approved", stored.Status)
	}
	if len(svc.Sent()) != 1 {
		t.Errorf("expected owner notification, got %d messages", len(svc.Sent()))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodPost, "/v1/records/r1/decision", `{"decision":"maybe"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid decision status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodPost, "/v1/records/nope/decision", `{"decision":"reject"}`))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown record status = %d, want 404", rec.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	srv, st, _ := newTestServer()
	st.InsertTutor(models.Tutor{ID: "r1", Identity: "u1", Name: "Jane Doe", Subjects: []string{"Physics"}, Status: models.StatusApproved, CreatedAt: time.Now()})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, adminRequest(http.MethodGet, "/v1/records/export", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %s, want text/csv", ct)
	}
	if !strings.Contains(rec.Body.String(), "Jane Doe") {
		t.Errorf("export missing record: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "u1") {
		t.Errorf("export must not contain identities: %s", rec.Body.String())
	}
}

func TestBroadcastEndpoint(t *testing.T) {
	srv, st, svc := newTestServer()
	st.InsertTutor(models.Tutor{ID: "r1", Identity: "u1", Name: "A", Status: models.StatusApproved, CreatedAt: time.Now()})
	st.InsertTutor(models.Tutor{ID: "r2", Identity: "u2", Name: "B", Status: models.StatusPending, CreatedAt: time.Now()})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, adminRequest(http.MethodPost, "/v1/broadcast", `{"message":"maintenance tonight"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("broadcast status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Result models.BroadcastResult `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.Result.Sent != 2 || resp.Result.Failed != 0 {
		t.Errorf("broadcast result = %+v, want sent=2 failed=0", resp.Result)
	}
	if len(svc.Sent()) != 2 {
		t.Errorf("expected 2 deliveries, got %d", len(svc.Sent()))
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, adminRequest(http.MethodPost, "/v1/broadcast", `{"message":""}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, st, _ := newTestServer()
	st.InsertTutor(models.Tutor{ID: "r1", Identity: "u1", Name: "A", Status: models.StatusApproved, CreatedAt: time.Now()})
	st.InsertTutor(models.Tutor{ID: "r2", Identity: "u2", Name: "B", Status: models.StatusPending, CreatedAt: time.Now()})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, adminRequest(http.MethodGet, "/v1/stats", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", rec.Code)
	}
	var resp struct {
		Result map[string]int `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.Result["total"] != 2 || resp.Result["approved"] != 1 || resp.Result["pending"] != 1 {
		t.Errorf("stats = %v", resp.Result)
	}
}

func TestListRecordsFilters(t *testing.T) {
	srv, st, _ := newTestServer()
	st.InsertTutor(models.Tutor{ID: "r1", Identity: "u1", Name: "A", Subjects: []string{"Physics"}, Status: models.StatusApproved, CreatedAt: time.Now()})
	st.InsertTutor(models.Tutor{ID: "r2", Identity: "u2", Name: "B", Subjects: []string{"English"}, Status: models.StatusApproved, CreatedAt: time.Now()})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, adminRequest(http.MethodGet, "/v1/records?subject=Physics", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"total":1`) || strings.Contains(body, `"English"`) {
		t.Errorf("subject filter not applied: %s", body)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, adminRequest(http.MethodGet, "/v1/records?status=bogus", ""))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status filter: status = %d, want 400", rec.Code)
	}
}
