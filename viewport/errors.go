package viewport

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedGeometry is matched by every geometry validation failure.
	ErrMalformedGeometry = errors.New("malformed geometry")

	// ErrDisposed is returned when a handle is released a second time.
	ErrDisposed = errors.New("resource already disposed")
)

// ValidationErrors holds every problem found in one mesh description.
type ValidationErrors []string

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	if len(ve) == 1 {
		return ve[0]
	}
	return fmt.Sprintf("%d validation errors: %s", len(ve), strings.Join(ve, "; "))
}

// Is reports ValidationErrors as ErrMalformedGeometry.
func (ve ValidationErrors) Is(target error) bool {
	return target == ErrMalformedGeometry
}

// ObjectError records a snapshot object that could not be built.
type ObjectError struct {
	Index int
	Name  string
	Err   error
}

func (e *ObjectError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("object %d (%s): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("object %d: %v", e.Index, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}
