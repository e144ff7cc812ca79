package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrAllRunnersFailed is returned when no virtual user could be started.
	ErrAllRunnersFailed = errors.New("all virtual users failed to start")
	// ErrAlreadyStarted is returned by a second call to Scheduler.Run.
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// ConfigurationError reports an invalid Options field. The run is rejected
// before any virtual user is created.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// StartupError wraps the factory failure of a single virtual user.
type StartupError struct {
	VU  int
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("virtual user %d failed to start: %v", e.VU, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// PanicError is the fault recorded when a workload panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workload panic: %v", e.Value)
}
