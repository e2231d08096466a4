package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/evanschultz/hrfeed/internal/app"
	"github.com/evanschultz/hrfeed/internal/domain"
)

const employeeColumns = `id, name, email, avatar_url, role, status, created_at, updated_at`

// CreateEmployee inserts one employee.
func (r *Repository) CreateEmployee(ctx context.Context, e domain.Employee) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO employees(id, name, email, avatar_url, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Name, e.Email, e.AvatarURL, string(e.Role), string(e.Status), ts(e.CreatedAt), ts(e.UpdatedAt))
	if err != nil {
		return errors.Wrapf(err, "insert employee %q", e.ID)
	}
	return nil
}

// UpdateEmployee replaces the mutable fields of one employee.
func (r *Repository) UpdateEmployee(ctx context.Context, e domain.Employee) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE employees
		SET name = ?, email = ?, avatar_url = ?, role = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, e.Name, e.Email, e.AvatarURL, string(e.Role), string(e.Status), ts(e.UpdatedAt), e.ID)
	if err != nil {
		return errors.Wrapf(err, "update employee %q", e.ID)
	}
	return translateNoRows(res)
}

// GetEmployee returns one employee or app.ErrNotFound.
func (r *Repository) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	return scanEmployee(row)
}

// ListEmployeesByIDs returns the employees that exist among ids, in no particular order.
func (r *Repository) ListEmployeesByIDs(ctx context.Context, ids []string) ([]domain.Employee, error) {
	if len(ids) == 0 {
		return []domain.Employee{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list employees by id")
	}
	defer rows.Close()

	out := make([]domain.Employee, 0, len(ids))
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, employee)
	}
	return out, rows.Err()
}

// scanEmployee handles scan employee.
func scanEmployee(s scanner) (domain.Employee, error) {
	var (
		e          domain.Employee
		roleRaw    string
		statusRaw  string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&e.ID, &e.Name, &e.Email, &e.AvatarURL, &roleRaw, &statusRaw, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Employee{}, app.ErrNotFound
		}
		return domain.Employee{}, errors.Wrap(err, "scan employee")
	}
	e.Role = domain.Role(roleRaw)
	e.Status = domain.EmployeeStatus(statusRaw)
	e.CreatedAt = parseTS(createdRaw)
	e.UpdatedAt = parseTS(updatedRaw)
	return e, nil
}
