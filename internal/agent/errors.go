package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/nugget/loanagent/internal/tools"
)

// Category classifies a run failure or a tool outcome.
type Category string

// Tool-level categories are not fatal; the model sees them as results.
const (
	CategoryUnknownTool      Category = tools.CategoryUnknownTool
	CategoryInvalidArguments Category = tools.CategoryInvalidArguments
	CategoryDataNotFound     Category = tools.CategoryDataNotFound
)

// Fatal categories end the run without an answer.
const (
	CategoryAdapterError           Category = "adapter_error"
	CategoryOrchestrationExhausted Category = "orchestration_exhausted"
	CategoryRequestTimeout         Category = "request_timeout"
	CategoryCanceled               Category = "canceled"
)

// Sentinels matched by errors.Is against a *RunError.
var (
	ErrAdapter                = errors.New("model invocation failed")
	ErrOrchestrationExhausted = errors.New("turn limit reached without a final answer")
	ErrRequestTimeout         = errors.New("request timed out")
	ErrCanceled               = errors.New("request canceled")
)

// RunError is returned by Loop.Run when a run aborts.
type RunError struct {
	Category Category
	Err      error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error { return e.Err }

// Is matches the sentinel for e's category.
func (e *RunError) Is(target error) bool {
	switch e.Category {
	case CategoryAdapterError:
		return target == ErrAdapter
	case CategoryOrchestrationExhausted:
		return target == ErrOrchestrationExhausted
	case CategoryRequestTimeout:
		return target == ErrRequestTimeout
	case CategoryCanceled:
		return target == ErrCanceled
	}
	return false
}

// CategoryOf returns the category of a run error, or "" if err is not
// one.
func CategoryOf(err error) Category {
	var re *RunError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}

// contextError classifies a context failure. Anything other than a
// cancellation counts as the deadline.
func contextError(err error) *RunError {
	if errors.Is(err, context.Canceled) {
		return &RunError{Category: CategoryCanceled, Err: err}
	}
	return &RunError{Category: CategoryRequestTimeout, Err: err}
}
