package commands

import (
	"context"

	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

// Ensure RunCheckExecutor implements Executor
var _ Executor = (*RunCheckExecutor)(nil)

// TriggerFunc requests an extra check cycle. It must not block; it returns
// an error when the request cannot be queued.
type TriggerFunc func() error

// RunCheckExecutor handles RUN_CHECK commands
type RunCheckExecutor struct {
	BaseExecutor
	trigger TriggerFunc
}

// NewRunCheckExecutor creates an executor that forwards to trigger
func NewRunCheckExecutor(trigger TriggerFunc) *RunCheckExecutor {
	return &RunCheckExecutor{trigger: trigger}
}

// SupportedType returns RUN_CHECK
func (e *RunCheckExecutor) SupportedType() types.CommandType {
	return types.CmdRunCheck
}

// Execute queues a check cycle. The cycle itself runs on the agent loop, so
// success only means the request was accepted.
func (e *RunCheckExecutor) Execute(ctx context.Context, cmd *types.QuasarCommand) types.CommandResult {
	if err := ctx.Err(); err != nil {
		return e.Failed(cmd.ID, err.Error())
	}
	if e.trigger == nil {
		return e.Failed(cmd.ID, "check trigger not configured")
	}
	if err := e.trigger(); err != nil {
		return e.Failed(cmd.ID, err.Error())
	}
	return e.Success(cmd.ID, "check cycle queued")
}
