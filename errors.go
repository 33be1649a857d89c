package manifold

import (
	"fmt"
)

// Error types for specific failure scenarios in pipeline execution

// UnknownStageError reports a stage name that no registry entry matches.
// Pipe construction fails with it before any data flows, so an unresolvable
// chain never reaches execution.
type UnknownStageError struct {
	// Name is the stage name that failed to resolve
	Name string
}

// Error implements the error interface for UnknownStageError.
func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %q", e.Name)
}

// NewUnknownStageError creates a new UnknownStageError for the given name.
func NewUnknownStageError(name string) *UnknownStageError {
	return &UnknownStageError{Name: name}
}

// StageError represents an error raised by a stage while processing. For
// per-item stages the index is the position of the failing item in the
// stage's input; whole-stream stages report a negative index.
type StageError struct {
	// Stage is the name of the stage where the error occurred
	Stage string
	// Index is the input position of the failing item, or -1 when the
	// failure is not tied to a single item
	Index int
	// OriginalError is the underlying error that occurred
	OriginalError error
}

// Error implements the error interface for StageError.
func (e *StageError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("stage %q item %d: %v", e.Stage, e.Index, e.OriginalError)
	}
	return fmt.Sprintf("stage %q: %v", e.Stage, e.OriginalError)
}

// Unwrap returns the underlying error for compatibility with errors.Is and errors.As.
func (e *StageError) Unwrap() error {
	return e.OriginalError
}

// NewStageError creates a new StageError with the provided details.
func NewStageError(stage string, index int, err error) *StageError {
	return &StageError{
		Stage:         stage,
		Index:         index,
		OriginalError: err,
	}
}

// RetryExhaustedError occurs when all retry attempts have been exhausted
// without success.
type RetryExhaustedError struct {
	// MaxAttempts is the maximum number of attempts that were made
	MaxAttempts int
	// LastError is the last error that occurred before giving up
	LastError error
}

// Error implements the error interface for RetryExhaustedError.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted %d attempts: %v", e.MaxAttempts, e.LastError)
}

// Unwrap returns the underlying error for compatibility with errors.Is and errors.As.
func (e *RetryExhaustedError) Unwrap() error {
	return e.LastError
}

// NewRetryExhaustedError creates a new RetryExhaustedError with the provided details.
func NewRetryExhaustedError(maxAttempts int, lastError error) *RetryExhaustedError {
	return &RetryExhaustedError{
		MaxAttempts: maxAttempts,
		LastError:   lastError,
	}
}
