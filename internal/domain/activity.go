package domain

import (
	"slices"
	"strings"
	"time"
)

// Action identifies one kind of domain event recorded in the activity log.
type Action string

// Action values accepted by the activity log.
const (
	ActionEmployeeAdded         Action = "employee_added"
	ActionEmployeeUpdated       Action = "employee_updated"
	ActionCandidateAdded        Action = "candidate_added"
	ActionCandidateUpdated      Action = "candidate_updated"
	ActionInterviewScheduled    Action = "interview_scheduled"
	ActionInterviewStageChanged Action = "interview_stage_changed"
	ActionLeaveRequested        Action = "leave_requested"
	ActionLeaveApproved         Action = "leave_approved"
	ActionLeaveRejected         Action = "leave_rejected"
	ActionAttendanceMarked      Action = "attendance_marked"
	ActionTodoCreated           Action = "todo_created"
	ActionTodoCompleted         Action = "todo_completed"
)

// validActions stores the fixed action enumeration in canonical order.
var validActions = []Action{
	ActionEmployeeAdded,
	ActionEmployeeUpdated,
	ActionCandidateAdded,
	ActionCandidateUpdated,
	ActionInterviewScheduled,
	ActionInterviewStageChanged,
	ActionLeaveRequested,
	ActionLeaveApproved,
	ActionLeaveRejected,
	ActionAttendanceMarked,
	ActionTodoCreated,
	ActionTodoCompleted,
}

// SubjectType identifies the entity category an activity is about.
type SubjectType string

// SubjectType values accepted by the activity log.
const (
	SubjectEmployee   SubjectType = "employee"
	SubjectCandidate  SubjectType = "candidate"
	SubjectInterview  SubjectType = "interview"
	SubjectLeave      SubjectType = "leave"
	SubjectAttendance SubjectType = "attendance"
	SubjectTodo       SubjectType = "todo"
	SubjectProject    SubjectType = "project"
)

// SubjectFilterAll disables subject-type filtering on paged reads.
const SubjectFilterAll = "all"

var validSubjectTypes = []SubjectType{
	SubjectEmployee,
	SubjectCandidate,
	SubjectInterview,
	SubjectLeave,
	SubjectAttendance,
	SubjectTodo,
	SubjectProject,
}

// Actions returns the fixed action enumeration.
func Actions() []Action {
	return append([]Action(nil), validActions...)
}

// SubjectTypes returns the fixed subject-type enumeration.
func SubjectTypes() []SubjectType {
	return append([]SubjectType(nil), validSubjectTypes...)
}

// NormalizeAction canonicalizes an action to its stored form.
func NormalizeAction(action Action) Action {
	return Action(strings.TrimSpace(strings.ToLower(string(action))))
}

// IsValidAction reports whether the action is part of the fixed enumeration.
func IsValidAction(action Action) bool {
	return slices.Contains(validActions, NormalizeAction(action))
}

// NormalizeSubjectType canonicalizes a subject type to its stored form.
func NormalizeSubjectType(subjectType SubjectType) SubjectType {
	return SubjectType(strings.TrimSpace(strings.ToLower(string(subjectType))))
}

// IsValidSubjectType reports whether the subject type is part of the fixed enumeration.
func IsValidSubjectType(subjectType SubjectType) bool {
	return slices.Contains(validSubjectTypes, NormalizeSubjectType(subjectType))
}

// Activity is one immutable activity-log entry.
type Activity struct {
	ID          int64
	ActorID     string
	Action      Action
	SubjectType SubjectType
	SubjectID   string
	SubjectName string
	Description string
	Details     Details
	Timestamp   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ActivityInput holds input values for activity creation.
type ActivityInput struct {
	ActorID     string
	Action      Action
	SubjectType SubjectType
	SubjectID   string
	SubjectName string
	Description string
	Details     Details
	Timestamp   time.Time
}

// NewActivity validates input and constructs a normalized activity record.
// Identifiers, SubjectName and Description are stored with surrounding whitespace trimmed.
// Timestamp defaults to now when unset.
func NewActivity(in ActivityInput, now time.Time) (Activity, error) {
	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		return Activity{}, ErrInvalidID
	}
	action := NormalizeAction(in.Action)
	if !IsValidAction(action) {
		return Activity{}, ErrInvalidAction
	}
	subjectType := NormalizeSubjectType(in.SubjectType)
	if !IsValidSubjectType(subjectType) {
		return Activity{}, ErrInvalidSubjectType
	}
	subjectID := strings.TrimSpace(in.SubjectID)
	if subjectID == "" {
		return Activity{}, ErrInvalidID
	}
	subjectName := strings.TrimSpace(in.SubjectName)
	if subjectName == "" {
		return Activity{}, ErrInvalidName
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return Activity{}, ErrInvalidDescription
	}
	details := in.Details
	if details == nil {
		details = Extra{}
	}
	if !details.allowedFor(action) {
		return Activity{}, ErrInvalidDetails
	}

	created := now.UTC()
	timestamp := in.Timestamp
	if timestamp.IsZero() {
		timestamp = created
	}
	return Activity{
		ActorID:     actorID,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		SubjectName: subjectName,
		Description: description,
		Details:     details,
		Timestamp:   timestamp.UTC(),
		CreatedAt:   created,
		UpdatedAt:   created,
	}, nil
}
