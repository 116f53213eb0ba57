package interfaces

import (
	"context"
	"time"
)

// Command describes one external tool invocation
type Command struct {
	Name        string
	Args        []string
	Dir         string
	Env         map[string]string
	Description string
}

// CommandResult is the outcome of a Command. ExitCode is -1 when the
// process could not be started or was killed.
type CommandResult struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// CommandRunner executes external tools. Run returns a non-nil result even
// on failure, and a non-nil error whenever the tool did not exit with 0.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}
