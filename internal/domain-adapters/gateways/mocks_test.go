package gateways

import (
	"context"
	"fmt"

	"github.com/ochairo/alembic/internal/domain/interfaces"
)

// recordingRunner records every command and fails the ones named in failOn
type recordingRunner struct {
	commands []interfaces.Command
	failOn   map[string]int // description -> exit code
	output   string
}

func (r *recordingRunner) Run(_ context.Context, cmd interfaces.Command) (*interfaces.CommandResult, error) {
	r.commands = append(r.commands, cmd)
	if code, ok := r.failOn[cmd.Description]; ok {
		return &interfaces.CommandResult{ExitCode: code, Output: r.output}, fmt.Errorf("%s exited with status %d", cmd.Description, code)
	}
	return &interfaces.CommandResult{ExitCode: 0, Output: r.output}, nil
}
