package domain

import (
	"slices"
	"strings"
	"time"
)

// Role describes the permission tier of an employee acting in the system.
type Role string

// Role values.
const (
	RoleAdmin    Role = "admin"
	RoleHR       Role = "hr"
	RoleEmployee Role = "employee"
)

var validRoles = []Role{RoleAdmin, RoleHR, RoleEmployee}

// EmployeeStatus describes whether an employee is expected at work.
type EmployeeStatus string

// EmployeeStatus values.
const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

// Employee is both a subject of HR events and an actor producing them.
type Employee struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
	Role      Role
	Status    EmployeeStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EmployeeInput holds input values for employee creation and updates.
type EmployeeInput struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
	Role      Role
	Status    EmployeeStatus
}

// NewEmployee validates input and constructs a normalized employee.
func NewEmployee(in EmployeeInput, now time.Time) (Employee, error) {
	e := Employee{ID: strings.TrimSpace(in.ID)}
	if e.ID == "" {
		return Employee{}, ErrInvalidID
	}
	if err := e.apply(in); err != nil {
		return Employee{}, err
	}
	e.CreatedAt = now.UTC()
	e.UpdatedAt = e.CreatedAt
	return e, nil
}

// Update applies new details and returns the names of the changed fields.
func (e *Employee) Update(in EmployeeInput, now time.Time) ([]string, error) {
	prev := *e
	next := *e
	if err := next.apply(in); err != nil {
		return nil, err
	}
	changed := make([]string, 0, 5)
	if prev.Name != next.Name {
		changed = append(changed, "name")
	}
	if prev.Email != next.Email {
		changed = append(changed, "email")
	}
	if prev.AvatarURL != next.AvatarURL {
		changed = append(changed, "avatar_url")
	}
	if prev.Role != next.Role {
		changed = append(changed, "role")
	}
	if prev.Status != next.Status {
		changed = append(changed, "status")
	}
	next.UpdatedAt = now.UTC()
	*e = next
	return changed, nil
}

// apply validates and copies mutable fields.
func (e *Employee) apply(in EmployeeInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ErrInvalidName
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email != "" && !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	role := Role(strings.TrimSpace(strings.ToLower(string(in.Role))))
	if role == "" {
		role = RoleEmployee
	}
	if !slices.Contains(validRoles, role) {
		return ErrInvalidRole
	}
	status := EmployeeStatus(strings.TrimSpace(strings.ToLower(string(in.Status))))
	if status == "" {
		status = EmployeeActive
	}
	if status != EmployeeActive && status != EmployeeInactive {
		return ErrInvalidStatus
	}
	e.Name = name
	e.Email = email
	e.AvatarURL = strings.TrimSpace(in.AvatarURL)
	e.Role = role
	e.Status = status
	return nil
}

// IsAdmin reports whether the employee may run destructive operations.
func (e Employee) IsAdmin() bool {
	return e.Role == RoleAdmin
}

// CanManageSettings reports whether the employee may change attendance settings.
func (e Employee) CanManageSettings() bool {
	return e.Role == RoleAdmin || e.Role == RoleHR
}

// ActorSummary is the display projection of an actor attached to feed reads.
type ActorSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Summary returns the actor display projection.
func (e Employee) Summary() ActorSummary {
	return ActorSummary{ID: e.ID, Name: e.Name, AvatarURL: e.AvatarURL}
}
