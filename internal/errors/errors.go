// Package errors provides structured error types for the hot-update
// pipeline. A failure in one file is reported with its file and stage and
// never aborts processing of other files.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Stage identifies the pipeline stage where a failure occurred.
type Stage string

const (
	StageRead      Stage = "read"
	StageParse     Stage = "parse"
	StageTransform Stage = "transform"
	StageResolve   Stage = "resolve"
	StageNetwork   Stage = "network"
	StagePatch     Stage = "patch"
	StageInternal  Stage = "internal"
)

// PipelineError is a structured error carrying the file and stage it
// originated from.
type PipelineError struct {
	File    string
	Stage   Stage
	Message string
	Cause   error
	Line    int
	Column  int
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Stage))
	}

	if e.File != "" {
		location := e.File
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by stage.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Stage == t.Stage
	}
	return false
}

// WithLocation adds file position information.
func (e *PipelineError) WithLocation(line, column int) *PipelineError {
	e.Line = line
	e.Column = column
	return e
}

// NewReadError creates a file read error.
func NewReadError(file, message string, cause error) *PipelineError {
	return &PipelineError{File: file, Stage: StageRead, Message: message, Cause: cause}
}

// NewParseError creates a parse error.
func NewParseError(file, message string, cause error) *PipelineError {
	return &PipelineError{File: file, Stage: StageParse, Message: message, Cause: cause}
}

// NewTransformError creates a transform error.
func NewTransformError(file, message string, cause error) *PipelineError {
	return &PipelineError{File: file, Stage: StageTransform, Message: message, Cause: cause}
}

// NewResolveError creates a dependency resolution error.
func NewResolveError(name, message string, cause error) *PipelineError {
	return &PipelineError{File: name, Stage: StageResolve, Message: message, Cause: cause}
}

// NewNetworkError creates an update-channel error.
func NewNetworkError(message string, cause error) *PipelineError {
	return &PipelineError{Stage: StageNetwork, Message: message, Cause: cause}
}

// NewPatchError creates a reconciliation error.
func NewPatchError(component, message string, cause error) *PipelineError {
	return &PipelineError{File: component, Stage: StagePatch, Message: message, Cause: cause}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *PipelineError {
	return &PipelineError{Stage: StageInternal, Message: message, Cause: cause}
}
