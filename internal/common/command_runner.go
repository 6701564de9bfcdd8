package common

import (
	"context"
	"fmt"

	"resumeforge/internal/errors"
	"resumeforge/internal/pipeline"
	"resumeforge/internal/types"
	"resumeforge/internal/workflow"
)

// TaskFailure is returned when a run ends in the failed phase. The CLI prints
// it and exits non-zero.
type TaskFailure struct {
	Kind    errors.ErrorKind
	Message string
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// LogDetailsFunc defines how to log the start of an operation.
type LogDetailsFunc func(req types.TaskRequest, cfg CommandConfig)

// RunTask drives one run of req through ctrl and writes the result. A start
// rejection is returned as is; a failed run comes back as *TaskFailure.
func RunTask(
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	p *pipeline.Pipeline,
	ctrl *workflow.Controller,
	req types.TaskRequest,
	logDetails LogDetailsFunc,
) (types.ValidatedResult, error) {
	if logDetails != nil {
		logDetails(req, cmdConfig)
	}

	state, err := p.Execute(ctx, ctrl, req)
	if err != nil {
		return types.ValidatedResult{}, err
	}
	if state.Phase != workflow.PhaseSuccess || state.Result == nil {
		return types.ValidatedResult{}, &TaskFailure{Kind: state.ErrorKind, Message: state.Error}
	}

	result := *state.Result
	outputHandler := NewOutputHandler(logger)
	if err := outputHandler.HandleOutput(result, cmdConfig); err != nil {
		return result, err
	}

	if cmdConfig.ExportDir != "" && result.Generate != nil && req.Generate != nil {
		if _, err := outputHandler.Export(*result.Generate, req.Generate.FullName, cmdConfig.ExportDir); err != nil {
			return result, err
		}
	}
	return result, nil
}
