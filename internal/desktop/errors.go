package desktop

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode is a stable identifier for a class of substrate failure.
type ErrorCode string

const (
	ErrCodeInvalidArgument     ErrorCode = "INVALID_ARGUMENT"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeAmbiguousOrNotFound ErrorCode = "AMBIGUOUS_OR_NOT_FOUND"
	ErrCodeElementNotFound     ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeInspectionFailed    ErrorCode = "INSPECTION_FAILED"
	ErrCodeExecutionFailed     ErrorCode = "EXECUTION_FAILED"
	ErrCodeUnknown             ErrorCode = "UNKNOWN_ERROR"
)

// InvalidArgumentError reports bad or missing caller input. It is never retried.
type InvalidArgumentError struct {
	Arg    string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Arg, e.Reason)
}

// NotFoundError reports that a named target (an application, a grid cell) does
// not exist.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// AmbiguousOrNotFoundError reports that no live window matched a title fragment
// within the locate timeout.
type AmbiguousOrNotFoundError struct {
	Fragment string
	Timeout  time.Duration
	// Candidates is the number of visible windows seen on the last poll.
	Candidates int
}

func (e *AmbiguousOrNotFoundError) Error() string {
	return fmt.Sprintf("no window title matches %q after %s (%d windows open)", e.Fragment, e.Timeout, e.Candidates)
}

// ElementNotFoundError reports that no visible element matched the criteria
// within the resolve wait.
type ElementNotFoundError struct {
	Criteria Criteria
	Wait     time.Duration
	Err      error
}

func (e *ElementNotFoundError) Error() string {
	msg := fmt.Sprintf("no visible element matching %s after %s", e.Criteria, e.Wait)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ElementNotFoundError) Unwrap() error { return e.Err }

// InspectionError reports that a window's tree could not be walked.
type InspectionError struct {
	Window string
	Err    error
}

func (e *InspectionError) Error() string {
	return fmt.Sprintf("failed to inspect window %q: %v", e.Window, e.Err)
}

func (e *InspectionError) Unwrap() error { return e.Err }

// ExecutionError reports an action that was attempted but did not complete.
// It always carries the criteria that were being acted on.
type ExecutionError struct {
	Op       string
	Window   string
	Criteria Criteria
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Criteria.Empty() {
		return fmt.Sprintf("%s failed in window %q: %v", e.Op, e.Window, e.Err)
	}
	return fmt.Sprintf("%s failed for element matching %s in window %q: %v", e.Op, e.Criteria, e.Window, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// scrubbedError masks withheld element text in a backend error's message
// while keeping the error chain intact.
type scrubbedError struct {
	err  error
	text string
}

func (e *scrubbedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), e.text, Redacted)
}

func (e *scrubbedError) Unwrap() error { return e.err }

// scrub hides text in err's message.
func scrub(err error, text string) error {
	if err == nil || text == "" || !strings.Contains(err.Error(), text) {
		return err
	}
	return &scrubbedError{err: err, text: text}
}

// Code classifies err into an ErrorCode.
func Code(err error) ErrorCode {
	var (
		invalid  *InvalidArgumentError
		notFound *NotFoundError
		window   *AmbiguousOrNotFoundError
		element  *ElementNotFoundError
		inspect  *InspectionError
		exec     *ExecutionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalid):
		return ErrCodeInvalidArgument
	case errors.As(err, &window):
		return ErrCodeAmbiguousOrNotFound
	case errors.As(err, &element):
		return ErrCodeElementNotFound
	case errors.As(err, &notFound):
		return ErrCodeNotFound
	case errors.As(err, &inspect):
		return ErrCodeInspectionFailed
	case errors.As(err, &exec):
		return ErrCodeExecutionFailed
	default:
		return ErrCodeUnknown
	}
}
