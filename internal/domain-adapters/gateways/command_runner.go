// Package gateways provides implementations of domain gateway interfaces.
package gateways

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/ochairo/alembic/internal/domain/interfaces"
)

// ExecRunner runs external tools with os/exec. It enforces no timeout of
// its own; deadlines belong to the caller's context.
type ExecRunner struct {
	logger interfaces.Logger
}

// NewExecRunner creates a new command runner
func NewExecRunner(logger interfaces.Logger) *ExecRunner {
	return &ExecRunner{logger: interfaces.OrNoOp(logger)}
}

// Run executes the command, capturing stdout and stderr into one stream
func (r *ExecRunner) Run(ctx context.Context, command interfaces.Command) (*interfaces.CommandResult, error) {
	startTime := time.Now()
	result := &interfaces.CommandResult{ExitCode: -1}

	//nolint:gosec // G204: tool invocations come from recipe configuration
	cmd := exec.CommandContext(ctx, command.Name, command.Args...)
	if command.Dir != "" {
		cmd.Dir = command.Dir
	}
	cmd.Env = mergeEnv(os.Environ(), command.Env)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	description := command.Description
	if description == "" {
		description = command.Name
	}
	r.logger.Debug("Executing "+description,
		interfaces.F("command", command.Name+" "+strings.Join(command.Args, " ")),
		interfaces.F("dir", command.Dir))

	err := cmd.Run()
	result.Duration = time.Since(startTime)
	result.Output = output.String()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("%s exited with status %d", description, result.ExitCode)
		}
		return result, fmt.Errorf("failed to run %s: %w", description, err)
	}

	result.ExitCode = 0
	r.logger.Debug("Finished "+description, interfaces.F("duration", result.Duration))
	return result, nil
}

// mergeEnv appends overrides in a stable order so later entries win
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := append([]string{}, base...)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return env
}
