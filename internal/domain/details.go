package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// DetailsKind tags which Details variant an activity carries.
type DetailsKind string

// DetailsKind values. Every variant except DetailsKindExtra is bound to a fixed set of actions.
const (
	DetailsKindExtra              DetailsKind = "extra"
	DetailsKindEmployee           DetailsKind = "employee"
	DetailsKindCandidate          DetailsKind = "candidate"
	DetailsKindInterviewScheduled DetailsKind = "interview_scheduled"
	DetailsKindInterviewStage     DetailsKind = "interview_stage"
	DetailsKindLeave              DetailsKind = "leave"
	DetailsKindAttendance         DetailsKind = "attendance"
	DetailsKindTodo               DetailsKind = "todo"
)

// Details is the closed set of auxiliary payloads an activity can carry.
type Details interface {
	Kind() DetailsKind
	allowedFor(Action) bool
}

// Extra is the open bag used by generic record calls.
type Extra map[string]any

// EmployeeDetails accompanies employee_added and employee_updated.
type EmployeeDetails struct {
	Email         string   `json:"email,omitempty"`
	Role          string   `json:"role,omitempty"`
	ChangedFields []string `json:"changed_fields,omitempty"`
}

// CandidateDetails accompanies candidate_added and candidate_updated.
type CandidateDetails struct {
	Position      string   `json:"position,omitempty"`
	ChangedFields []string `json:"changed_fields,omitempty"`
}

// InterviewScheduledDetails accompanies interview_scheduled.
type InterviewScheduledDetails struct {
	Date string `json:"date"`
}

// InterviewStageDetails accompanies interview_stage_changed.
type InterviewStageDetails struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// LeaveDetails accompanies leave_requested, leave_approved and leave_rejected.
type LeaveDetails struct {
	LeaveType string `json:"leave_type,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// AttendanceDetails accompanies attendance_marked.
type AttendanceDetails struct {
	Status     string `json:"status,omitempty"`
	CheckedOut bool   `json:"checked_out,omitempty"`
}

// TodoDetails accompanies todo_created and todo_completed.
type TodoDetails struct {
	DueDate string `json:"due_date,omitempty"`
}

func (Extra) Kind() DetailsKind                     { return DetailsKindExtra }
func (EmployeeDetails) Kind() DetailsKind           { return DetailsKindEmployee }
func (CandidateDetails) Kind() DetailsKind          { return DetailsKindCandidate }
func (InterviewScheduledDetails) Kind() DetailsKind { return DetailsKindInterviewScheduled }
func (InterviewStageDetails) Kind() DetailsKind     { return DetailsKindInterviewStage }
func (LeaveDetails) Kind() DetailsKind              { return DetailsKindLeave }
func (AttendanceDetails) Kind() DetailsKind         { return DetailsKindAttendance }
func (TodoDetails) Kind() DetailsKind               { return DetailsKindTodo }

func (Extra) allowedFor(Action) bool { return true }

func (EmployeeDetails) allowedFor(a Action) bool {
	return a == ActionEmployeeAdded || a == ActionEmployeeUpdated
}

func (CandidateDetails) allowedFor(a Action) bool {
	return a == ActionCandidateAdded || a == ActionCandidateUpdated
}

func (InterviewScheduledDetails) allowedFor(a Action) bool { return a == ActionInterviewScheduled }

func (InterviewStageDetails) allowedFor(a Action) bool { return a == ActionInterviewStageChanged }

func (LeaveDetails) allowedFor(a Action) bool {
	return slices.Contains([]Action{ActionLeaveRequested, ActionLeaveApproved, ActionLeaveRejected}, a)
}

func (AttendanceDetails) allowedFor(a Action) bool { return a == ActionAttendanceMarked }

func (TodoDetails) allowedFor(a Action) bool {
	return a == ActionTodoCreated || a == ActionTodoCompleted
}

// EncodeDetails serializes details into its kind tag and JSON payload.
func EncodeDetails(d Details) (DetailsKind, string, error) {
	if d == nil {
		d = Extra{}
	}
	if extra, ok := d.(Extra); ok && extra == nil {
		d = Extra{}
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return "", "", fmt.Errorf("encode %s details: %w", d.Kind(), err)
	}
	return d.Kind(), string(raw), nil
}

// DecodeDetails restores the variant named by kind from its JSON payload.
func DecodeDetails(kind DetailsKind, raw string) (Details, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		raw = "{}"
	}
	var (
		out Details
		err error
	)
	switch DetailsKind(strings.TrimSpace(string(kind))) {
	case "", DetailsKindExtra:
		var v Extra
		err = json.Unmarshal([]byte(raw), &v)
		if v == nil {
			v = Extra{}
		}
		out = v
	case DetailsKindEmployee:
		out, err = decodeVariant[EmployeeDetails](raw)
	case DetailsKindCandidate:
		out, err = decodeVariant[CandidateDetails](raw)
	case DetailsKindInterviewScheduled:
		out, err = decodeVariant[InterviewScheduledDetails](raw)
	case DetailsKindInterviewStage:
		out, err = decodeVariant[InterviewStageDetails](raw)
	case DetailsKindLeave:
		out, err = decodeVariant[LeaveDetails](raw)
	case DetailsKindAttendance:
		out, err = decodeVariant[AttendanceDetails](raw)
	case DetailsKindTodo:
		out, err = decodeVariant[TodoDetails](raw)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidDetails, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s details: %w", kind, err)
	}
	return out, nil
}

// decodeVariant unmarshals one concrete variant.
func decodeVariant[T Details](raw string) (Details, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}
