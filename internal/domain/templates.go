package domain

import (
	"fmt"
	"strings"
)

// Description templates for the convenience recorders. Names are interpolated verbatim.

// DescribeEmployeeAdded renders the employee_added description.
func DescribeEmployeeAdded(name string) string { return "Added new employee " + name }

// DescribeEmployeeUpdated renders the employee_updated description.
func DescribeEmployeeUpdated(name string) string { return "Updated employee " + name }

// DescribeCandidateAdded renders the candidate_added description.
func DescribeCandidateAdded(name string) string { return "Added new candidate " + name }

// DescribeCandidateUpdated renders the candidate_updated description.
func DescribeCandidateUpdated(name string) string { return "Updated candidate " + name }

// DescribeInterviewScheduled renders the interview_scheduled description.
func DescribeInterviewScheduled(name, date string) string {
	return fmt.Sprintf("Scheduled interview for %s on %s", name, date)
}

// DescribeInterviewStageChanged renders the interview_stage_changed description.
func DescribeInterviewStageChanged(name, from, to string) string {
	return fmt.Sprintf("Changed interview stage for %s from %s to %s", name, from, to)
}

// DescribeLeave renders leave_requested, leave_approved and leave_rejected descriptions.
func DescribeLeave(action Action, name string) string {
	verb := "Requested"
	switch action {
	case ActionLeaveApproved:
		verb = "Approved"
	case ActionLeaveRejected:
		verb = "Rejected"
	}
	return verb + " leave for " + name
}

// DescribeAttendance renders the attendance_marked description.
func DescribeAttendance(name, status string, checkedOut bool) string {
	if checkedOut {
		return "Checked out for " + name
	}
	return "Marked attendance as " + strings.TrimSpace(status) + " for " + name
}

// DescribeTodoCreated renders the todo_created description.
func DescribeTodoCreated(title string) string { return "Created todo: " + title }

// DescribeTodoCompleted renders the todo_completed description.
func DescribeTodoCompleted(title string) string { return "Completed todo: " + title }
