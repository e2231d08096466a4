package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultAbsenceMarkingTime is used when no settings record exists yet.
const DefaultAbsenceMarkingTime = "18:00"

// AttendanceStatus values recorded for one employee and calendar day.
type AttendanceStatus string

// AttendanceStatus values.
const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceHalfDay AttendanceStatus = "half_day"
	AttendanceOnLeave AttendanceStatus = "on_leave"
)

// AttendanceSettings is the persisted record driving the absence-marking job.
type AttendanceSettings struct {
	AutoAbsenceEnabled bool      `json:"auto_absence_enabled"`
	AbsenceMarkingTime string    `json:"absence_marking_time"`
	UpdatedAt          time.Time `json:"updated_at,omitzero"`
}

// ClockTime is a 24-hour wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// String renders the time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClockTime parses one HH:MM value in 00:00..23:59.
func ParseClockTime(raw string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidMarkingTime, raw)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidMarkingTime, raw)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidMarkingTime, raw)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// Normalize validates the settings and canonicalizes the marking time.
func (s AttendanceSettings) Normalize() (AttendanceSettings, error) {
	if strings.TrimSpace(s.AbsenceMarkingTime) == "" {
		s.AbsenceMarkingTime = DefaultAbsenceMarkingTime
	}
	clock, err := ParseClockTime(s.AbsenceMarkingTime)
	if err != nil {
		return AttendanceSettings{}, err
	}
	s.AbsenceMarkingTime = clock.String()
	return s, nil
}

// AbsenceSummary reports the outcome of marking absences for one day.
type AbsenceSummary struct {
	Date            string `json:"date"`
	Marked          int    `json:"marked"`
	AlreadyRecorded int    `json:"already_recorded"`
}

// CalendarDate renders the civil date of t in its own location.
func CalendarDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
