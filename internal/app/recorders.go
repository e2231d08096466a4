package app

import (
	"context"
	"strings"

	"github.com/evanschultz/hrfeed/internal/domain"
)

// SubjectRef names the entity an activity is about.
type SubjectRef struct {
	ID   string
	Name string
}

// trimmedName is the name as stored, so descriptions match the persisted subject_name.
func (r SubjectRef) trimmedName() string {
	return strings.TrimSpace(r.Name)
}

// RecordEmployeeAdded records employee_added.
func (s *Service) RecordEmployeeAdded(ctx context.Context, actorID string, employee SubjectRef, details domain.EmployeeDetails) (domain.Activity, error) {
	return s.recordFixed(ctx, actorID, domain.ActionEmployeeAdded, domain.SubjectEmployee, employee, domain.DescribeEmployeeAdded(employee.trimmedName()), details)
}

// RecordEmployeeUpdated records employee_updated.
func (s *Service) RecordEmployeeUpdated(ctx context.Context, actorID string, employee SubjectRef, details domain.EmployeeDetails) (domain.Activity, error) {
	return s.recordFixed(ctx, actorID, domain.ActionEmployeeUpdated, domain.SubjectEmployee, employee, domain.DescribeEmployeeUpdated(employee.trimmedName()), details)
}

// RecordCandidateAdded records candidate_added.
func (s *Service) RecordCandidateAdded(ctx context.Context, actorID string, candidate SubjectRef, details domain.CandidateDetails) (domain.Activity, error) {
	return s.recordFixed(ctx, actorID, domain.ActionCandidateAdded, domain.SubjectCandidate, candidate, domain.DescribeCandidateAdded(candidate.trimmedName()), details)
}

// RecordCandidateUpdated records candidate_updated.
func (s *Service) RecordCandidateUpdated(ctx context.Context, actorID string, candidate SubjectRef, details domain.CandidateDetails) (domain.Activity, error) {
	return s.recordFixed(ctx, actorID, domain.ActionCandidateUpdated, domain.SubjectCandidate, candidate, domain.DescribeCandidateUpdated(candidate.trimmedName()), details)
}

// RecordInterviewScheduled records interview_scheduled. The subject is the interview; its name is the candidate's.
func (s *Service) RecordInterviewScheduled(ctx context.Context, actorID string, interview SubjectRef, date string) (domain.Activity, error) {
	return s.recordFixed(ctx, actorID, domain.ActionInterviewScheduled, domain.SubjectInterview, interview,
		domain.DescribeInterviewScheduled(interview.trimmedName(), date), domain.InterviewScheduledDetails{Date: date})
}

// RecordInterviewStageChanged records interview_stage_changed.
func (s *Service) RecordInterviewStageChanged(ctx context.Context, actorID string, interview SubjectRef, from, to string) (domain.Activity, error) {
	return s.recordFixed(ctx, actorID, domain.ActionInterviewStageChanged, domain.SubjectInterview, interview,
		domain.DescribeInterviewStageChanged(interview.trimmedName(), from, to), domain.InterviewStageDetails{From: from, To: to})
}

// RecordLeaveRequested records leave_requested. The subject name is the employee's.
func (s *Service) RecordLeaveRequested(ctx context.Context, actorID string, leave SubjectRef, details domain.LeaveDetails) (domain.Activity, error) {
	return s.recordLeave(ctx, actorID, domain.ActionLeaveRequested, leave, details)
}

// RecordLeaveApproved records leave_approved.
func (s *Service) RecordLeaveApproved(ctx context.Context, actorID string, leave SubjectRef, details domain.LeaveDetails) (domain.Activity, error) {
	return s.recordLeave(ctx, actorID, domain.ActionLeaveApproved, leave, details)
}

// RecordLeaveRejected records leave_rejected.
func (s *Service) RecordLeaveRejected(ctx context.Context, actorID string, leave SubjectRef, details domain.LeaveDetails) (domain.Activity, error) {
	return s.recordLeave(ctx, actorID, domain.ActionLeaveRejected, leave, details)
}

// RecordAttendanceMarked records attendance_marked. CheckedOut selects the check-out wording.
func (s *Service) RecordAttendanceMarked(ctx context.Context, actorID string, attendance SubjectRef, details domain.AttendanceDetails) (domain.Activity, error) {
	return s.recordFixed(ctx, actorID, domain.ActionAttendanceMarked, domain.SubjectAttendance, attendance,
		domain.DescribeAttendance(attendance.trimmedName(), details.Status, details.CheckedOut), details)
}

// RecordTodoCreated records todo_created. The subject name is the todo title.
func (s *Service) RecordTodoCreated(ctx context.Context, actorID string, todo SubjectRef, details domain.TodoDetails) (domain.Activity, error) {
	return s.recordFixed(ctx, actorID, domain.ActionTodoCreated, domain.SubjectTodo, todo, domain.DescribeTodoCreated(todo.trimmedName()), details)
}

// RecordTodoCompleted records todo_completed.
func (s *Service) RecordTodoCompleted(ctx context.Context, actorID string, todo SubjectRef, details domain.TodoDetails) (domain.Activity, error) {
	return s.recordFixed(ctx, actorID, domain.ActionTodoCompleted, domain.SubjectTodo, todo, domain.DescribeTodoCompleted(todo.trimmedName()), details)
}

func (s *Service) recordLeave(ctx context.Context, actorID string, action domain.Action, leave SubjectRef, details domain.LeaveDetails) (domain.Activity, error) {
	return s.recordFixed(ctx, actorID, action, domain.SubjectLeave, leave, domain.DescribeLeave(action, leave.trimmedName()), details)
}

func (s *Service) recordFixed(ctx context.Context, actorID string, action domain.Action, subjectType domain.SubjectType, subject SubjectRef, description string, details domain.Details) (domain.Activity, error) {
	return s.Record(ctx, RecordActivityInput{
		ActorID:     actorID,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		Description: description,
		Details:     details,
	})
}
