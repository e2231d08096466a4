package app

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/evanschultz/hrfeed/internal/domain"
)

// AttendanceSettings returns the persisted settings, or the configured defaults when none are stored.
func (s *Service) AttendanceSettings(ctx context.Context) (domain.AttendanceSettings, error) {
	settings, ok, err := s.repo.GetAttendanceSettings(ctx)
	if err != nil {
		return domain.AttendanceSettings{}, errors.Wrap(err, "read attendance settings")
	}
	if !ok {
		return s.defaultSettings, nil
	}
	normalized, err := settings.Normalize()
	if err != nil {
		return domain.AttendanceSettings{}, validationError(err, "read attendance settings")
	}
	return normalized, nil
}

// UpdateAttendanceSettings persists new settings and notifies the rescheduler.
// A failed reschedule is logged and leaves the previous schedule armed; the settings stay saved.
func (s *Service) UpdateAttendanceSettings(ctx context.Context, requesterID string, in domain.AttendanceSettings) (domain.AttendanceSettings, error) {
	requester, err := s.repo.GetEmployee(ctx, strings.TrimSpace(requesterID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.AttendanceSettings{}, authorizationError("update attendance settings: unknown requester", "Identify as an administrator or HR user.")
		}
		return domain.AttendanceSettings{}, errors.Wrap(err, "update attendance settings: resolve requester")
	}
	if !requester.CanManageSettings() {
		return domain.AttendanceSettings{}, authorizationError("update attendance settings: requester lacks permission", "Only administrators and HR users can change attendance settings.")
	}
	settings, err := in.Normalize()
	if err != nil {
		return domain.AttendanceSettings{}, validationError(err, "update attendance settings")
	}
	settings.UpdatedAt = s.clock().UTC()
	if err := s.repo.SaveAttendanceSettings(ctx, settings); err != nil {
		return domain.AttendanceSettings{}, errors.Wrap(err, "save attendance settings")
	}
	s.logger.Info("attendance settings updated", "requester", requester.ID, "auto_absence_enabled", settings.AutoAbsenceEnabled, "absence_marking_time", settings.AbsenceMarkingTime)

	if r := s.currentRescheduler(); r != nil {
		if err := r.Reschedule(ctx); err != nil {
			s.logger.Error("absence job reschedule failed", "err", err)
		}
	}
	return settings, nil
}

// MarkAbsences marks every active employee without attendance on day as absent.
func (s *Service) MarkAbsences(ctx context.Context, day time.Time) (domain.AbsenceSummary, error) {
	date := domain.CalendarDate(day)
	summary, err := s.repo.MarkAbsences(ctx, date, s.idGen)
	if err != nil {
		return domain.AbsenceSummary{}, errors.Mark(errors.Wrapf(err, "mark absences for %s", date), ErrExecution)
	}
	s.logger.Info("absences marked", "date", summary.Date, "marked", summary.Marked, "already_recorded", summary.AlreadyRecorded)
	return summary, nil
}
