package app

import (
	"context"

	"github.com/evanschultz/hrfeed/internal/domain"
)

// ActivityQuery filters and bounds one activity read. Empty fields do not filter.
type ActivityQuery struct {
	ActorID     string
	SubjectType domain.SubjectType
	SubjectID   string
	Limit       int
	Offset      int
}

// ActivityRepository persists the append-only activity log.
type ActivityRepository interface {
	CreateActivity(context.Context, domain.Activity) (domain.Activity, error)
	ListActivities(context.Context, ActivityQuery) ([]domain.Activity, error)
	CountActivities(context.Context, ActivityQuery) (int, error)
	DeleteAllActivities(context.Context) (int64, error)
}

// EmployeeRepository persists employees, who double as activity actors.
type EmployeeRepository interface {
	CreateEmployee(context.Context, domain.Employee) error
	UpdateEmployee(context.Context, domain.Employee) error
	GetEmployee(context.Context, string) (domain.Employee, error)
	ListEmployeesByIDs(context.Context, []string) ([]domain.Employee, error)
}

// SettingsRepository persists the attendance settings record.
type SettingsRepository interface {
	GetAttendanceSettings(context.Context) (domain.AttendanceSettings, bool, error)
	SaveAttendanceSettings(context.Context, domain.AttendanceSettings) error
}

// AttendanceRepository records daily attendance.
type AttendanceRepository interface {
	MarkAbsences(ctx context.Context, date string, idGen func() string) (domain.AbsenceSummary, error)
}

// Repository is the full storage contract used by Service.
type Repository interface {
	ActivityRepository
	EmployeeRepository
	SettingsRepository
	AttendanceRepository
}

// Rescheduler is notified whenever the attendance settings change.
type Rescheduler interface {
	Reschedule(context.Context) error
}
