package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

var (
	// ErrCourseNotFound indicates the referenced course does not exist.
	ErrCourseNotFound = errors.New("course not found")

	// ErrVideoNotFound indicates the referenced video does not exist.
	ErrVideoNotFound = errors.New("video not found")

	// ErrProfileNotFound indicates no encode profile carries the given name.
	ErrProfileNotFound = errors.New("encode profile not found")

	// ErrCredentialsNotFound indicates no transcript credentials exist for an org and provider.
	ErrCredentialsNotFound = errors.New("transcript credentials not found")

	// ErrProcessNotFound indicates no transcript process matches a vendor callback.
	ErrProcessNotFound = errors.New("transcript process not found")

	// ErrExternalIDImmutable is returned when an update would change a video's external identifier.
	ErrExternalIDImmutable = errors.New("video external id is immutable once assigned")

	// ErrJobTypeRequired indicates a required job type field is empty.
	ErrJobTypeRequired = errors.New("job type is required")

	// ErrTaskNotClaimable indicates the task is not running under the caller's claim.
	ErrTaskNotClaimable = errors.New("task is not held by this worker")
)
