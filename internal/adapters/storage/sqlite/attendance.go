package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/evanschultz/hrfeed/internal/domain"
)

const attendanceSettingsKey = "attendance"

// GetAttendanceSettings returns the stored settings and whether a record exists.
func (r *Repository) GetAttendanceSettings(ctx context.Context) (domain.AttendanceSettings, bool, error) {
	var raw, updatedRaw string
	err := r.db.QueryRowContext(ctx, `SELECT value_json, updated_at FROM settings WHERE key = ?`, attendanceSettingsKey).Scan(&raw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AttendanceSettings{}, false, nil
	}
	if err != nil {
		return domain.AttendanceSettings{}, false, errors.Wrap(err, "read attendance settings")
	}
	var settings domain.AttendanceSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return domain.AttendanceSettings{}, false, errors.Wrap(err, "decode attendance settings")
	}
	settings.UpdatedAt = parseTS(updatedRaw)
	return settings, true, nil
}

// SaveAttendanceSettings upserts the settings record.
func (r *Repository) SaveAttendanceSettings(ctx context.Context, settings domain.AttendanceSettings) error {
	updatedAt := settings.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	settings.UpdatedAt = time.Time{}
	raw, err := json.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "encode attendance settings")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings(key, value_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
	`, attendanceSettingsKey, string(raw), ts(updatedAt))
	if err != nil {
		return errors.Wrap(err, "save attendance settings")
	}
	return nil
}

// MarkAbsences inserts an absent row for every active employee with no attendance on date.
// Running it twice for the same date marks nobody the second time.
func (r *Repository) MarkAbsences(ctx context.Context, date string, idGen func() string) (domain.AbsenceSummary, error) {
	summary := domain.AbsenceSummary{Date: date}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, errors.Wrap(err, "begin mark absences")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var active int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM employees WHERE status = ?`, string(domain.EmployeeActive)).Scan(&active); err != nil {
		return summary, errors.Wrap(err, "count active employees")
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT e.id FROM employees e
		WHERE e.status = ?
		  AND NOT EXISTS (SELECT 1 FROM attendance a WHERE a.employee_id = e.id AND a.date = ?)
		ORDER BY e.id
	`, string(domain.EmployeeActive), date)
	if err != nil {
		return summary, errors.Wrap(err, "list unmarked employees")
	}
	missing := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return summary, errors.Wrap(err, "scan unmarked employee")
		}
		missing = append(missing, id)
	}
	if err := rows.Close(); err != nil {
		return summary, errors.Wrap(err, "close unmarked employees")
	}
	if err := rows.Err(); err != nil {
		return summary, errors.Wrap(err, "list unmarked employees")
	}

	now := ts(time.Now())
	for _, employeeID := range missing {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO attendance(id, employee_id, date, status, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(employee_id, date) DO NOTHING
		`, idGen(), employeeID, date, string(domain.AttendanceAbsent), now)
		if err != nil {
			return summary, errors.Wrapf(err, "mark %q absent", employeeID)
		}
		if n, err := res.RowsAffected(); err == nil {
			summary.Marked += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return summary, errors.Wrap(err, "commit mark absences")
	}
	committed = true
	summary.AlreadyRecorded = active - len(missing)
	return summary, nil
}
