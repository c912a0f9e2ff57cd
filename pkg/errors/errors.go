package errors

import (
	stderrors "errors"
	"fmt"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures job definition validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Category names one class of stage failure. Each category maps to a
// distinct process exit code through ExitCode.
type Category string

const (
	CategorySetup      Category = "SETUP"
	CategoryExecution  Category = "EXECUTION"
	CategoryNoEvents   Category = "NO_EVENTS"
	CategoryValidation Category = "VALIDATION"
	CategoryLogfile    Category = "LOGFILE_ERROR"
	CategoryOutputFile Category = "OUTPUT_FILE_ERROR"
	CategoryInputFile  Category = "INPUT_FILE_ERROR"
	CategoryGraph      Category = "GRAPH_ERROR"
)

// StageError is a typed failure raised by one lifecycle phase of a stage.
// Message is mutable through Append so that a failure raised early can be
// enriched with later findings before it is surfaced.
type StageError struct {
	Category Category
	Stage    string
	Message  string
	Err      error
}

func newStageError(cat Category, stage, message string, err error) *StageError {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &StageError{Category: cat, Stage: stage, Message: message, Err: err}
}

// NewSetupError reports missing or malformed configuration detected before any process starts.
func NewSetupError(stage, message string, err error) *StageError {
	return newStageError(CategorySetup, stage, message, err)
}

// NewExecutionError reports a child process that could not be spawned or supervised.
func NewExecutionError(stage, message string, err error) *StageError {
	return newStageError(CategoryExecution, stage, message, err)
}

// NewNoEventsError reports a stage with nothing to process.
func NewNoEventsError(stage, message string) *StageError {
	return newStageError(CategoryNoEvents, stage, message, nil)
}

// NewValidationFailure reports a bad return code or a failed validation check.
func NewValidationFailure(stage, message string, err error) *StageError {
	return newStageError(CategoryValidation, stage, message, err)
}

// NewLogfileError reports a fatal finding in a stage logfile.
func NewLogfileError(stage, message string, err error) *StageError {
	return newStageError(CategoryLogfile, stage, message, err)
}

// NewOutputFileError reports a missing or malformed output file.
func NewOutputFileError(stage, message string, err error) *StageError {
	return newStageError(CategoryOutputFile, stage, message, err)
}

// NewInputFileError reports a missing or unreadable input file.
func NewInputFileError(stage, message string, err error) *StageError {
	return newStageError(CategoryInputFile, stage, message, err)
}

// NewGraphError reports an inconsistent stage graph definition.
func NewGraphError(stage, message string) *StageError {
	return newStageError(CategoryGraph, stage, message, nil)
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Category, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap exposes the underlying error.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Append extends the message with "; detail". Empty details are ignored.
func (e *StageError) Append(detail string) {
	if e == nil || detail == "" {
		return
	}
	if e.Message == "" {
		e.Message = detail
		return
	}
	e.Message = e.Message + "; " + detail
}

// ExitCode returns the registry code for this failure's category.
func (e *StageError) ExitCode() int {
	if e == nil {
		return 0
	}
	return ExitCode(string(e.Category))
}

// AsStageError extracts a StageError from err's chain.
func AsStageError(err error) (*StageError, bool) {
	var stageErr *StageError
	if stderrors.As(err, &stageErr) {
		return stageErr, true
	}
	return nil, false
}

// IsCategory reports whether err carries a StageError of the given category.
func IsCategory(err error, cat Category) bool {
	stageErr, ok := AsStageError(err)
	return ok && stageErr.Category == cat
}
