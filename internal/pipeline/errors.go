package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures by how they are recovered.
type ErrorKind int

const (
	// KindTransientExternal is a network or timeout failure talking to
	// storage, the broker or the system of record. The next heal cycle
	// corrects it.
	KindTransientExternal ErrorKind = iota + 1
	// KindValidation is a corrupt or invalid source file or artifact.
	KindValidation
	// KindConfigurationGap is missing credentials, profiles or course
	// mappings. Only the affected video or profile is skipped.
	KindConfigurationGap
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindTransientExternal:
		return "transient_external"
	case KindValidation:
		return "validation"
	case KindConfigurationGap:
		return "configuration_gap"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first classified error in err's chain, or
// 0 if err is not classified.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}

func transientErr(op string, err error) error {
	return &Error{Kind: KindTransientExternal, Op: op, Err: err}
}

func validationErr(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func configErr(op string, err error) error {
	return &Error{Kind: KindConfigurationGap, Op: op, Err: err}
}

var (
	// ErrArtifactMissing indicates a worker output is not in the deliverable bucket.
	ErrArtifactMissing = errors.New("artifact not found in deliverable storage")

	// ErrInvalidArtifact indicates a worker output failed validation.
	ErrInvalidArtifact = errors.New("artifact failed validation")

	// ErrUnreachable indicates a delivered URL did not pass the liveness check.
	ErrUnreachable = errors.New("destination url is not reachable")

	// ErrNoRoute indicates a profile's destination has no delivery method.
	ErrNoRoute = errors.New("no delivery route for destination")

	// ErrNoVendor indicates no transcription client is registered for a provider.
	ErrNoVendor = errors.New("no transcription vendor for provider")

	// ErrNoTranscriptStorage indicates no storage is wired for publishing transcripts.
	ErrNoTranscriptStorage = errors.New("no transcript storage configured")
)
