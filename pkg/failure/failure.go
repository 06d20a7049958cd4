// Package failure defines the error taxonomy used across the rectification
// pipeline. Every stage reports problems as a *Error carrying a Kind so the
// batch orchestrator can decide between degrading, retrying and aborting.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the stage (or concern) that produced it.
type Kind string

const (
	SpineDetection    Kind = "SpineDetectionFailure"
	BoundaryDetection Kind = "BoundaryDetectionFailure"
	Perspective       Kind = "PerspectiveFailure"
	Dewarp            Kind = "DewarpFailure"
	IO                Kind = "IOFailure"
	Configuration     Kind = "ConfigurationFailure"
	Timeout           Kind = "TimeoutFailure"
	Unknown           Kind = "UnknownFailure"
)

// Fatal reports whether a failure of this kind must abort the whole run.
func (k Kind) Fatal() bool {
	return k == Configuration
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err as a failure of the given kind. A nil err still yields a
// non-nil *Error so callers can report conditions that have no cause.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a failure from a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries a failure of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
