// Package httpapi provides the REST HTTP adapter for the activity feed, scheduler status, and settings.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/evanschultz/hrfeed/internal/app"
	"github.com/evanschultz/hrfeed/internal/domain"
	"github.com/evanschultz/hrfeed/internal/scheduler"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// ActorHeader carries the id of the employee performing the request.
const ActorHeader = "X-Actor-ID"

// ActivityService is the activity log surface used by the handler.
type ActivityService interface {
	Record(context.Context, app.RecordActivityInput) (domain.Activity, error)
	RecentActivities(ctx context.Context, limit int) ([]app.ActivityView, error)
	AllActivities(context.Context, app.AllActivitiesInput) (app.ActivityPage, error)
	ActivitiesByActor(ctx context.Context, actorID string, limit int) ([]app.ActivityView, error)
	ActivitiesByEntity(ctx context.Context, subjectType domain.SubjectType, subjectID string, limit int) ([]app.ActivityView, error)
	DeleteAll(ctx context.Context, requesterID string) (int64, error)
}

// SettingsService reads and updates attendance settings.
type SettingsService interface {
	AttendanceSettings(context.Context) (domain.AttendanceSettings, error)
	UpdateAttendanceSettings(ctx context.Context, requesterID string, in domain.AttendanceSettings) (domain.AttendanceSettings, error)
}

// EmployeeService registers, updates, and reads employees.
type EmployeeService interface {
	RegisterEmployee(ctx context.Context, actorID string, in domain.EmployeeInput) (domain.Employee, error)
	UpdateEmployee(ctx context.Context, actorID, employeeID string, in domain.EmployeeInput) (domain.Employee, error)
	GetEmployee(ctx context.Context, employeeID string) (domain.Employee, error)
}

// SchedulerStatus reports the absence-job snapshot.
type SchedulerStatus interface {
	Status() scheduler.Status
}

// Dependencies groups the services behind the API. Scheduler may be nil.
type Dependencies struct {
	Activities ActivityService
	Settings   SettingsService
	Employees  EmployeeService
	Scheduler  SchedulerStatus
}

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	deps Dependencies
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	switch {
	case path == "activities":
		switch r.Method {
		case http.MethodGet:
			h.handleAllActivities(w, r)
		case http.MethodPost:
			h.handleRecordActivity(w, r)
		case http.MethodDelete:
			h.handleDeleteAllActivities(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
		}
	case path == "activities/recent":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleRecentActivities(w, r)
	case strings.HasPrefix(path, "activities/actors/"):
		actorID, ok := pathParams(path, "activities/actors/", 1)
		if !ok {
			writeNotFound(w)
			return
		}
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleActivitiesByActor(w, r, actorID[0])
	case strings.HasPrefix(path, "activities/entities/"):
		params, ok := pathParams(path, "activities/entities/", 2)
		if !ok {
			writeNotFound(w)
			return
		}
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleActivitiesByEntity(w, r, params[0], params[1])
	case path == "scheduler/status":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleSchedulerStatus(w)
	case path == "settings/attendance":
		switch r.Method {
		case http.MethodGet:
			h.handleGetAttendanceSettings(w, r)
		case http.MethodPut:
			h.handleUpdateAttendanceSettings(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPut)
		}
	case path == "employees":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleRegisterEmployee(w, r)
	case strings.HasPrefix(path, "employees/"):
		employeeID, ok := pathParams(path, "employees/", 1)
		if !ok {
			writeNotFound(w)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleGetEmployee(w, r, employeeID[0])
		case http.MethodPut:
			h.handleUpdateEmployee(w, r, employeeID[0])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPut)
		}
	default:
		writeNotFound(w)
	}
}

// handleRecentActivities serves GET `/activities/recent`.
func (h *Handler) handleRecentActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	activities, err := h.deps.Activities.RecentActivities(r.Context(), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": activities})
}

// handleAllActivities serves GET `/activities`.
func (h *Handler) handleAllActivities(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.deps.Activities.AllActivities(r.Context(), app.AllActivitiesInput{
		Page:        page,
		Limit:       limit,
		SubjectType: r.URL.Query().Get("subject_type"),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleActivitiesByActor serves GET `/activities/actors/{actorID}`.
func (h *Handler) handleActivitiesByActor(w http.ResponseWriter, r *http.Request, actorID string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	activities, err := h.deps.Activities.ActivitiesByActor(r.Context(), actorID, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": activities})
}

// handleActivitiesByEntity serves GET `/activities/entities/{subjectType}/{subjectID}`.
func (h *Handler) handleActivitiesByEntity(w http.ResponseWriter, r *http.Request, subjectType, subjectID string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	activities, err := h.deps.Activities.ActivitiesByEntity(r.Context(), domain.SubjectType(subjectType), subjectID, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": activities})
}

// recordActivityRequest is the generic write payload; the actor comes from the request header.
type recordActivityRequest struct {
	Action      string         `json:"action"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id"`
	SubjectName string         `json:"subject_name"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
}

// handleRecordActivity serves POST `/activities`.
func (h *Handler) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req recordActivityRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	details := domain.Extra(req.Details)
	if details == nil {
		details = domain.Extra{}
	}
	activity, err := h.deps.Activities.Record(r.Context(), app.RecordActivityInput{
		ActorID:     actorID(r),
		Action:      domain.Action(req.Action),
		SubjectType: domain.SubjectType(req.SubjectType),
		SubjectID:   req.SubjectID,
		SubjectName: req.SubjectName,
		Description: req.Description,
		Details:     details,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app.NewActivityView(activity, nil))
}

// handleDeleteAllActivities serves DELETE `/activities`.
func (h *Handler) handleDeleteAllActivities(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.deps.Activities.DeleteAll(r.Context(), actorID(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// handleSchedulerStatus serves GET `/scheduler/status`.
func (h *Handler) handleSchedulerStatus(w http.ResponseWriter) {
	if h.deps.Scheduler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "scheduler is not configured",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Scheduler.Status())
}

// handleGetAttendanceSettings serves GET `/settings/attendance`.
func (h *Handler) handleGetAttendanceSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.deps.Settings.AttendanceSettings(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleUpdateAttendanceSettings serves PUT `/settings/attendance`.
func (h *Handler) handleUpdateAttendanceSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.AttendanceSettings
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	settings, err := h.deps.Settings.UpdateAttendanceSettings(r.Context(), actorID(r), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// employeeRequest is the register/update payload.
type employeeRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

func (req employeeRequest) input() domain.EmployeeInput {
	return domain.EmployeeInput{
		Name:      req.Name,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
		Role:      domain.Role(req.Role),
		Status:    domain.EmployeeStatus(req.Status),
	}
}

// employeeResponse is the wire form of one employee.
type employeeResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toEmployeeResponse(e domain.Employee) employeeResponse {
	return employeeResponse{
		ID:        e.ID,
		Name:      e.Name,
		Email:     e.Email,
		AvatarURL: e.AvatarURL,
		Role:      string(e.Role),
		Status:    string(e.Status),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// handleRegisterEmployee serves POST `/employees`.
func (h *Handler) handleRegisterEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	employee, err := h.deps.Employees.RegisterEmployee(r.Context(), actorID(r), req.input())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeResponse(employee))
}

// handleGetEmployee serves GET `/employees/{id}`.
func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request, employeeID string) {
	employee, err := h.deps.Employees.GetEmployee(r.Context(), employeeID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeResponse(employee))
}

// handleUpdateEmployee serves PUT `/employees/{id}`.
func (h *Handler) handleUpdateEmployee(w http.ResponseWriter, r *http.Request, employeeID string) {
	var req employeeRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	employee, err := h.deps.Employees.UpdateEmployee(r.Context(), actorID(r), employeeID, req.input())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeResponse(employee))
}

// actorID returns the trimmed requesting actor id.
func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

// queryInt parses one optional integer query parameter; absent values are zero.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Mark(errors.Newf("query parameter %s must be an integer, got %q", name, raw), app.ErrValidation)
	}
	return v, nil
}

// pathParams splits the remainder of path after prefix into exactly n non-empty segments.
func pathParams(path, prefix string, n int) ([]string, bool) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) != n {
		return nil, false
	}
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
		if parts[i] == "" {
			return nil, false
		}
	}
	return parts, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, app.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
			Hint:    errors.FlattenHints(err),
		})
	case errors.Is(err, app.ErrAuthorization):
		writeJSONError(w, http.StatusForbidden, APIError{
			Code:    "forbidden",
			Message: err.Error(),
			Hint:    errors.FlattenHints(err),
		})
	case errors.Is(err, app.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeNotFound writes the structured unknown-endpoint response.
func writeNotFound(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotFound, APIError{
		Code:    "not_found",
		Message: "endpoint not found",
	})
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return errors.Mark(errors.Wrap(err, "decode request body"), app.ErrValidation)
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.Mark(errors.New("decode request body: trailing content"), app.ErrValidation)
	}
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "request canceled")
	default:
		return nil
	}
}
