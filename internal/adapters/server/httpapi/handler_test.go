package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/evanschultz/hrfeed/internal/adapters/storage/sqlite"
	"github.com/evanschultz/hrfeed/internal/app"
	"github.com/evanschultz/hrfeed/internal/domain"
	"github.com/evanschultz/hrfeed/internal/scheduler"
)

// stubActivities provides deterministic activity responses for handler tests.
type stubActivities struct {
	err        error
	lastLimit  int
	lastPage   app.AllActivitiesInput
	lastEntity [2]string
}

func (s *stubActivities) Record(context.Context, app.RecordActivityInput) (domain.Activity, error) {
	return domain.Activity{}, s.err
}

func (s *stubActivities) RecentActivities(_ context.Context, limit int) ([]app.ActivityView, error) {
	s.lastLimit = limit
	return []app.ActivityView{}, s.err
}

func (s *stubActivities) AllActivities(_ context.Context, in app.AllActivitiesInput) (app.ActivityPage, error) {
	s.lastPage = in
	return app.ActivityPage{Activities: []app.ActivityView{}, Page: max(in.Page, 1), Limit: in.Limit}, s.err
}

func (s *stubActivities) ActivitiesByActor(_ context.Context, _ string, limit int) ([]app.ActivityView, error) {
	s.lastLimit = limit
	return []app.ActivityView{}, s.err
}

func (s *stubActivities) ActivitiesByEntity(_ context.Context, subjectType domain.SubjectType, subjectID string, limit int) ([]app.ActivityView, error) {
	s.lastEntity = [2]string{string(subjectType), subjectID}
	s.lastLimit = limit
	return []app.ActivityView{}, s.err
}

func (s *stubActivities) DeleteAll(context.Context, string) (int64, error) {
	return 0, s.err
}

// stubScheduler returns a fixed status snapshot.
type stubScheduler struct {
	status scheduler.Status
}

func (s stubScheduler) Status() scheduler.Status { return s.status }

func serve(t *testing.T, handler http.Handler, method, target, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeRecorder[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return out
}

// TestHandlerErrorMapping verifies taxonomy sentinels map to HTTP status codes.
func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
		wantHint string
	}{
		{"validation", errors.Mark(errors.New("bad action"), app.ErrValidation), http.StatusBadRequest, "invalid_request", ""},
		{"authorization", errors.WithHint(errors.Mark(errors.New("not admin"), app.ErrAuthorization), "ask an admin"), http.StatusForbidden, "forbidden", "ask an admin"},
		{"not found", errors.Wrap(app.ErrNotFound, "get employee"), http.StatusNotFound, "not_found", ""},
		{"internal", errors.New("disk full"), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(Dependencies{Activities: &stubActivities{err: tc.err}})
			rec := serve(t, handler, http.MethodDelete, "/activities", "U1", "")
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			got := decodeRecorder[ErrorEnvelope](t, rec)
			if got.Error.Code != tc.wantKind {
				t.Fatalf("code = %q, want %q", got.Error.Code, tc.wantKind)
			}
			if got.Error.Hint != tc.wantHint {
				t.Fatalf("hint = %q, want %q", got.Error.Hint, tc.wantHint)
			}
		})
	}
}

// TestHandlerQueryParsing verifies limit, page, and path parameters reach the service.
func TestHandlerQueryParsing(t *testing.T) {
	stub := &stubActivities{}
	handler := NewHandler(Dependencies{Activities: stub})

	if rec := serve(t, handler, http.MethodGet, "/activities/recent?limit=7", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("recent status = %d", rec.Code)
	}
	if stub.lastLimit != 7 {
		t.Fatalf("limit = %d, want 7", stub.lastLimit)
	}

	rec := serve(t, handler, http.MethodGet, "/activities?page=3&limit=5&subject_type=leave", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("page status = %d", rec.Code)
	}
	if stub.lastPage != (app.AllActivitiesInput{Page: 3, Limit: 5, SubjectType: "leave"}) {
		t.Fatalf("unexpected page input %#v", stub.lastPage)
	}

	if rec := serve(t, handler, http.MethodGet, "/activities/entities/interview/I9", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("entity status = %d", rec.Code)
	}
	if stub.lastEntity != [2]string{"interview", "I9"} || stub.lastLimit != 0 {
		t.Fatalf("unexpected entity call %v limit %d", stub.lastEntity, stub.lastLimit)
	}

	if rec := serve(t, handler, http.MethodGet, "/activities/recent?limit=ten", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit status = %d, want 400", rec.Code)
	}
	if rec := serve(t, handler, http.MethodGet, "/activities/entities/interview", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("short entity path status = %d, want 404", rec.Code)
	}
	rec = serve(t, handler, http.MethodPatch, "/activities", "", "")
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != "GET, POST, DELETE" {
		t.Fatalf("method status = %d allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
}

// TestHandlerSchedulerStatus verifies the status snapshot is served as JSON.
func TestHandlerSchedulerStatus(t *testing.T) {
	handler := NewHandler(Dependencies{Scheduler: stubScheduler{status: scheduler.Status{
		Initialized:       true,
		AbsenceMarkingJob: scheduler.JobStatus{Enabled: true, Running: true, TimeZone: "Asia/Kolkata"},
		Stats:             scheduler.Stats{RunCount: 4, ErrorCount: 1},
		Health:            scheduler.HealthWarning,
	}}})
	rec := serve(t, handler, http.MethodGet, "/scheduler/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeRecorder[scheduler.Status](t, rec)
	if got.Health != scheduler.HealthWarning || got.Stats.RunCount != 4 || !got.AbsenceMarkingJob.Running {
		t.Fatalf("unexpected status %#v", got)
	}

	rec = serve(t, NewHandler(Dependencies{}), http.MethodGet, "/scheduler/status", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured scheduler status = %d, want 503", rec.Code)
	}
}

// TestHandlerEndToEndActivityFeed drives the API over a real service and database.
func TestHandlerEndToEndActivityFeed(t *testing.T) {
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	ids := 0
	svc := app.NewService(repo, func() string {
		ids++
		return fmt.Sprintf("E%d", ids)
	}, func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }, app.ServiceConfig{})
	ctx := context.Background()
	admin, err := domain.NewEmployee(domain.EmployeeInput{ID: "U1", Name: "Ada Admin", Role: domain.RoleAdmin}, time.Now())
	if err != nil {
		t.Fatalf("NewEmployee() error = %v", err)
	}
	if err := repo.CreateEmployee(ctx, admin); err != nil {
		t.Fatalf("CreateEmployee() error = %v", err)
	}
	handler := NewHandler(Dependencies{Activities: svc, Settings: svc, Employees: svc})

	rec := serve(t, handler, http.MethodPost, "/employees", "U1", `{"name":"Jane Doe","email":"jane@example.com"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, handler, http.MethodGet, "/activities/recent?limit=1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recent status = %d", rec.Code)
	}
	recent := decodeRecorder[struct {
		Activities []struct {
			Description string               `json:"description"`
			Actor       *domain.ActorSummary `json:"actor"`
			DetailsKind string               `json:"details_kind"`
		} `json:"activities"`
	}](t, rec)
	if len(recent.Activities) != 1 || recent.Activities[0].Description != "Added new employee Jane Doe" {
		t.Fatalf("unexpected recent payload %#v", recent)
	}
	if recent.Activities[0].Actor == nil || recent.Activities[0].Actor.Name != "Ada Admin" {
		t.Fatalf("expected enriched actor, got %#v", recent.Activities[0].Actor)
	}

	rec = serve(t, handler, http.MethodPost, "/activities", "U1", `{"action":"todo_created","subject_type":"todo","subject_id":"T1","subject_name":"Payroll","description":"Created todo: Payroll","details":{"priority":"high"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = serve(t, handler, http.MethodPost, "/activities", "U1", `{"action":"payroll_run","subject_type":"todo","subject_id":"T1","subject_name":"x","description":"y"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid record status = %d, want 400", rec.Code)
	}
	rec = serve(t, handler, http.MethodPost, "/activities", "U1", `{"action":"todo_created"} {}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("trailing body status = %d, want 400", rec.Code)
	}

	rec = serve(t, handler, http.MethodPut, "/settings/attendance", "U1", `{"auto_absence_enabled":true,"absence_marking_time":"7:00"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid settings status = %d, want 400", rec.Code)
	}
	rec = serve(t, handler, http.MethodPut, "/settings/attendance", "E1", `{"auto_absence_enabled":true,"absence_marking_time":"19:00"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("employee settings status = %d, want 403", rec.Code)
	}
	rec = serve(t, handler, http.MethodPut, "/settings/attendance", "U1", `{"auto_absence_enabled":true,"absence_marking_time":"19:00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("settings status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, handler, http.MethodDelete, "/activities", "E1", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin delete status = %d, want 403", rec.Code)
	}
	rec = serve(t, handler, http.MethodDelete, "/activities", "U1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	deleted := decodeRecorder[map[string]int64](t, rec)
	if deleted["deleted"] != 2 {
		t.Fatalf("deleted = %d, want 2", deleted["deleted"])
	}

	rec = serve(t, handler, http.MethodPut, "/employees/nope", "U1", `{"name":"Ghost"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing employee status = %d, want 404", rec.Code)
	}

	rec = serve(t, handler, http.MethodPut, "/employees/E1", "E1", `{"name":"Jane Doe","email":"jane@example.com","role":"admin"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("self-promotion status = %d, want 403", rec.Code)
	}
	rec = serve(t, handler, http.MethodPost, "/employees", "E1", `{"name":"Mint Admin","role":"admin"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin register admin status = %d, want 403", rec.Code)
	}
	rec = serve(t, handler, http.MethodGet, "/employees/E1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get employee status = %d body = %s", rec.Code, rec.Body.String())
	}
	fetched := decodeRecorder[map[string]any](t, rec)
	if fetched["id"] != "E1" || fetched["role"] != "employee" {
		t.Fatalf("unexpected employee payload %#v", fetched)
	}
	rec = serve(t, handler, http.MethodGet, "/employees/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get missing employee status = %d, want 404", rec.Code)
	}
	rec = serve(t, handler, http.MethodDelete, "/employees/E1", "U1", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("delete employee status = %d, want 405", rec.Code)
	}
}
