package service

import "fmt"

// ValidationError reports missing or invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError reports a missing cycle, forecast or approval record.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ForbiddenError reports an actor acting out of turn.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// ConflictError reports a lost update or a concurrent workflow mutation.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...interface{}) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func forbiddenf(format string, args ...interface{}) error {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...interface{}) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// validateCycle checks the (month, year) partition key.
func validateCycle(month, year int) error {
	if month < 1 || month > 12 {
		return validationf("month must be between 1 and 12, got %d", month)
	}
	if year < 1 {
		return validationf("year must be positive, got %d", year)
	}
	return nil
}
