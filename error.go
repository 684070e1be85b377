package vidpipe

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidState is returned if pipeline method cannot be executed in current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrLink is returned when elements cannot be linked.
	ErrLink = errors.New("link failed")
	// ErrNotLinked is returned when pipeline is started before elements are linked.
	ErrNotLinked = errors.New("pipeline is not linked")
	// ErrDuplicateName is returned when element with the same name is already added.
	ErrDuplicateName = errors.New("duplicate element name")
	// ErrQueryFailed is returned when position or duration cannot be determined.
	ErrQueryFailed = errors.New("query failed")
	// ErrNotSeekable is returned when no element can handle seek.
	ErrNotSeekable = errors.New("not seekable")
	// ErrNoOverlay is returned when no element implements video overlay.
	ErrNoOverlay = errors.New("no video overlay")
	// ErrClosed is returned when pipeline is already closed.
	ErrClosed = errors.New("pipeline closed")
)

// ElementError is an error which happened in particular element.
type ElementError struct {
	Element string
	Err     error
	Debug   string
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// newElementError wraps err with element name. If err carries a stack
// trace, it's used as debug string.
func newElementError(e Element, err error) *ElementError {
	var debug string
	if st, ok := err.(stackTracer); ok {
		debug = fmt.Sprintf("%+v", st.StackTrace())
	}
	return &ElementError{
		Element: e.Name(),
		Err:     err,
		Debug:   debug,
	}
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s: %v", e.Element, e.Err)
}

// Unwrap returns underlying error.
func (e *ElementError) Unwrap() error {
	return e.Err
}
