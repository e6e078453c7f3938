package podcast

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindEmptyScript   Kind = "empty_script"
	KindSynthesis     Kind = "synthesis"
	KindAssembly      Kind = "assembly"
	KindCancelled     Kind = "cancelled"
)

var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrEmptyScript   = &Error{Kind: KindEmptyScript}
	ErrSynthesis     = &Error{Kind: KindSynthesis}
	ErrAssembly      = &Error{Kind: KindAssembly}
	ErrCancelled     = &Error{Kind: KindCancelled}
)

// Error is a fatal pipeline failure with the stage it happened in. Segment is
// the 1-based position of the failing chunk in synthesis order, or 0.
type Error struct {
	Kind    Kind
	Stage   Stage
	Segment int
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s during %s", msg, e.Stage)
	}
	if e.Segment > 0 {
		msg = fmt.Sprintf("%s (segment %d)", msg, e.Segment)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrSynthesis)
// works regardless of stage or segment.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func configError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Stage: StageStart, Err: fmt.Errorf(format, args...)}
}
