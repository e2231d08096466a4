package app

import (
	"context"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/evanschultz/hrfeed/internal/domain"
)

// RegisterEmployee creates an employee and records employee_added on behalf of actorID.
// Only administrators may register anyone with a role other than employee.
func (s *Service) RegisterEmployee(ctx context.Context, actorID string, in domain.EmployeeInput) (domain.Employee, error) {
	return s.createEmployee(ctx, actorID, in, true)
}

// ProvisionEmployee creates an employee with any role without resolving a requester.
// It backs local operator tooling, which is how the first administrator comes to exist.
func (s *Service) ProvisionEmployee(ctx context.Context, in domain.EmployeeInput) (domain.Employee, error) {
	return s.createEmployee(ctx, "", in, false)
}

func (s *Service) createEmployee(ctx context.Context, actorID string, in domain.EmployeeInput, gated bool) (domain.Employee, error) {
	in.ID = s.idGen()
	employee, err := domain.NewEmployee(in, s.clock())
	if err != nil {
		return domain.Employee{}, validationError(err, "register employee")
	}
	if gated && employee.Role != domain.RoleEmployee {
		if err := s.authorizeRoleAssignment(ctx, actorID, "register employee"); err != nil {
			return domain.Employee{}, err
		}
	}
	if err := s.repo.CreateEmployee(ctx, employee); err != nil {
		return domain.Employee{}, errors.Wrap(err, "register employee")
	}
	// The activity entry is auxiliary; a failed append does not undo the registration.
	if _, err := s.RecordEmployeeAdded(ctx, chooseActor(actorID, employee.ID), SubjectRef{ID: employee.ID, Name: employee.Name}, domain.EmployeeDetails{
		Email: employee.Email,
		Role:  string(employee.Role),
	}); err != nil {
		s.logger.Warn("employee_added activity not recorded", "employee_id", employee.ID, "err", err)
	}
	return employee, nil
}

// UpdateEmployee applies new details and records employee_updated when anything changed.
// Changing the role requires an administrator.
func (s *Service) UpdateEmployee(ctx context.Context, actorID, employeeID string, in domain.EmployeeInput) (domain.Employee, error) {
	employee, err := s.repo.GetEmployee(ctx, strings.TrimSpace(employeeID))
	if err != nil {
		return domain.Employee{}, errors.Wrapf(err, "update employee %q", employeeID)
	}
	changed, err := employee.Update(in, s.clock())
	if err != nil {
		return domain.Employee{}, validationError(err, "update employee")
	}
	if len(changed) == 0 {
		return employee, nil
	}
	if slices.Contains(changed, "role") {
		if err := s.authorizeRoleAssignment(ctx, actorID, "update employee"); err != nil {
			return domain.Employee{}, err
		}
	}
	if err := s.repo.UpdateEmployee(ctx, employee); err != nil {
		return domain.Employee{}, errors.Wrapf(err, "update employee %q", employeeID)
	}
	if _, err := s.RecordEmployeeUpdated(ctx, chooseActor(actorID, employee.ID), SubjectRef{ID: employee.ID, Name: employee.Name}, domain.EmployeeDetails{
		Role:          string(employee.Role),
		ChangedFields: changed,
	}); err != nil {
		s.logger.Warn("employee_updated activity not recorded", "employee_id", employee.ID, "err", err)
	}
	return employee, nil
}

// GetEmployee returns one employee.
func (s *Service) GetEmployee(ctx context.Context, employeeID string) (domain.Employee, error) {
	employee, err := s.repo.GetEmployee(ctx, strings.TrimSpace(employeeID))
	if err != nil {
		return domain.Employee{}, errors.Wrapf(err, "get employee %q", employeeID)
	}
	return employee, nil
}

// authorizeRoleAssignment fails with ErrAuthorization unless requesterID names an administrator.
func (s *Service) authorizeRoleAssignment(ctx context.Context, requesterID, op string) error {
	requester, err := s.repo.GetEmployee(ctx, strings.TrimSpace(requesterID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return authorizationError(op+": unknown requester", "Identify as an administrator to assign roles.")
		}
		return errors.Wrapf(err, "%s: resolve requester", op)
	}
	if !requester.IsAdmin() {
		return authorizationError(op+": requester is not an administrator", "Only administrators can assign or change roles.")
	}
	return nil
}

// chooseActor returns the first non-empty actor id.
func chooseActor(candidates ...string) string {
	for _, candidate := range candidates {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
