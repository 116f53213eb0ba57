package main

import (
	"errors"

	"github.com/ochairo/alembic/internal/domain/entities"
)

// ExitCode is the process status returned to scripts and CI
type ExitCode int

// Exit codes, one per pipeline error kind
const (
	ExitSuccess              ExitCode = 0
	ExitGeneralError         ExitCode = 1
	ExitMalformedVersion     ExitCode = 2
	ExitPatchConflict        ExitCode = 3
	ExitUnsupportedToolchain ExitCode = 4
	ExitBuildFailed          ExitCode = 5
	ExitSigningFailed        ExitCode = 6
	ExitMissingArtifact      ExitCode = 7
	ExitPublishFailed        ExitCode = 8
)

var kindExitCodes = []struct {
	kind error
	code ExitCode
}{
	{entities.ErrMalformedVersion, ExitMalformedVersion},
	{entities.ErrPatchConflict, ExitPatchConflict},
	{entities.ErrUnsupportedToolchain, ExitUnsupportedToolchain},
	{entities.ErrBuildFailed, ExitBuildFailed},
	{entities.ErrSigningFailed, ExitSigningFailed},
	{entities.ErrMissingArtifact, ExitMissingArtifact},
	{entities.ErrPublishFailed, ExitPublishFailed},
}

func exitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	for _, k := range kindExitCodes {
		if errors.Is(err, k.kind) {
			return k.code
		}
	}
	return ExitGeneralError
}
