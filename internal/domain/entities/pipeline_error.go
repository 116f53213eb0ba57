package entities

import (
	"errors"
	"fmt"
	"strings"
)

// Pipeline error kinds. Compare with errors.Is.
var (
	ErrMalformedVersion     = errors.New("malformed version")
	ErrPatchConflict        = errors.New("patch conflict")
	ErrUnsupportedToolchain = errors.New("unsupported toolchain")
	ErrBuildFailed          = errors.New("build failed")
	ErrSigningFailed        = errors.New("signing failed")
	ErrMissingArtifact      = errors.New("missing artifact")
	ErrPublishFailed        = errors.New("publish failed")
)

// Stage names a step of the packaging pipeline
type Stage string

// Pipeline stages in execution order
const (
	StageVersion Stage = "version"
	StagePatch   Stage = "patch"
	StageBuild   Stage = "build"
	StagePackage Stage = "package"
	StageSign    Stage = "sign"
	StagePublish Stage = "publish"
)

// PipelineError is returned by every pipeline stage. It carries the stage,
// the error kind and, for external tools, the exit status and captured output.
type PipelineError struct {
	Kind     error
	Stage    Stage
	Message  string
	ExitCode int
	Output   string
	Err      error
}

// NewPipelineError creates a PipelineError without an external exit status
func NewPipelineError(kind error, stage Stage, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Message: message, ExitCode: -1, Err: err}
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Stage, e.Kind)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is matches the error kind sentinel
func (e *PipelineError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause
func (e *PipelineError) Unwrap() error {
	return e.Err
}
