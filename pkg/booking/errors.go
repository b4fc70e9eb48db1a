package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking service. Each maps to one
// of the caller-visible kinds: not-found, conflict, expired, forbidden,
// validation, rate-limited. Store failures outside this set surface as
// wrapped internal errors.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrSlotNotFound    = errors.New("slot not found")
	ErrBookingNotFound = errors.New("booking not found")

	ErrAlreadyBooked = errors.New("slot already booked by account")
	ErrSlotFull      = errors.New("slot fully booked")
	ErrEmailTaken    = errors.New("email already registered")
	ErrEventOverlap  = errors.New("event window overlaps another event")
	ErrEventSameDay  = errors.New("an event already starts on that day")

	ErrSlotExpired  = errors.New("slot already started")
	ErrEventStarted = errors.New("event already started")

	ErrForbidden          = errors.New("operation forbidden")
	ErrAccountBlocked     = errors.New("account blocked")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrRateLimited = errors.New("rate limit exceeded")

	ErrInvalidAccountID     = errors.New("invalid account id")
	ErrInvalidSlotID        = errors.New("invalid slot id")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrInvalidAccountName   = errors.New("invalid account name")
	ErrWeakPassword         = errors.New("password does not meet strength requirements")
	ErrInvalidTimeOfDay     = errors.New("invalid time of day")
	ErrInvalidEventInput    = errors.New("invalid event fields")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidAuditDetail   = errors.New("invalid audit detail")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
