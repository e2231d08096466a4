package domain

import "errors"

var (
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidAction      = errors.New("invalid activity action")
	ErrInvalidSubjectType = errors.New("invalid subject type")
	ErrInvalidDescription = errors.New("invalid description")
	ErrInvalidDetails     = errors.New("invalid activity details")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidMarkingTime = errors.New("invalid absence marking time")
	ErrInvalidEmail       = errors.New("invalid email")
)
