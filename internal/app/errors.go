package app

import "github.com/cockroachdb/errors"

// Error taxonomy shared by the activity log, settings, and the absence-marking job.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("not authorized")
	ErrScheduling    = errors.New("scheduling failed")
	ErrExecution     = errors.New("execution failed")
)

// validationError marks err as a validation failure while keeping its domain cause inspectable.
func validationError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrValidation)
}

// authorizationError builds one authorization failure carrying a user-facing hint.
func authorizationError(msg, hint string) error {
	return errors.WithHint(errors.Mark(errors.New(msg), ErrAuthorization), hint)
}
