package draw

import "fmt"

// ValidationError reports malformed, missing or out-of-range caller input.
// It is raised before any hashing or proving work starts, so the caller can
// correct the input and retry immediately.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
