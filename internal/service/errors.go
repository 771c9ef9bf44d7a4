// Package service holds the business rules of the trip report tracker:
// identity and access, the report lifecycle with its read tracking and
// discussion threads, and user to staff linking.  Services depend on small
// store interfaces satisfied by the repository package.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput wraps every validation failure; the message names the field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is the single login failure, whatever went wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnknownRole is returned for role names that do not exist when
	// strict role assignment is enabled, and by role replacement.
	ErrUnknownRole = errors.New("unknown role")
	// ErrParentThreadMismatch rejects a reply whose parent lives in another thread.
	ErrParentThreadMismatch = errors.New("parent comment belongs to a different thread")
	// ErrInvalidDateRange rejects a trip that ends before it starts.
	ErrInvalidDateRange = fmt.Errorf("%w: trip_end_date is before trip_start_date", ErrInvalidInput)
	// ErrInvalidStatus rejects decisions other than approved or rejected.
	ErrInvalidStatus = fmt.Errorf("%w: status must be approved or rejected", ErrInvalidInput)
)

func invalid(field, problem string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidInput, field, problem)
}
