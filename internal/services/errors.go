package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingTemplate  = errors.New("template not found")
	ErrMissingInput     = errors.New("input table not found")
	ErrMissingConverter = errors.New("document converter not found")
	ErrMissingState     = errors.New("sequence state not initialized")
	ErrNoSequence       = errors.New("no sequence state file")
	ErrNotFound         = errors.New("not found")
)

// ConfigurationError is fatal and is raised before any record is processed.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Err.Error() }
func (e *ConfigurationError) Unwrap() error { return e.Err }

// InputError reports an unreadable or malformed input table. It is fatal.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return "input: " + e.Err.Error()
	}
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}
func (e *InputError) Unwrap() error { return e.Err }

// RecordError is isolated to one row; the batch continues without committing.
type RecordError struct {
	Line  int
	Stage string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("row %d: %s: %v", e.Line, e.Stage, e.Err)
}
func (e *RecordError) Unwrap() error { return e.Err }

// ToolFailure is returned by external tools that exit non-zero, time out, or
// produce output that does not validate.
type ToolFailure struct {
	Tool      string
	ExitCode  int
	TimedOut  bool
	Malformed bool
	Timeout   time.Duration
	Output    string
	Err       error
}

func (e *ToolFailure) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("%s timed out after %s", e.Tool, e.Timeout)
	case e.Malformed:
		return fmt.Sprintf("%s produced malformed output: %v", e.Tool, e.Err)
	case e.ExitCode != 0:
		return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Output)
	default:
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
}
func (e *ToolFailure) Unwrap() error { return e.Err }

func configErr(err error) error { return &ConfigurationError{Err: err} }
