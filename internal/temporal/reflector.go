package temporal

import (
	"context"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/task"
	"github.com/rs/zerolog"
	tc "go.temporal.io/sdk/client"
)

// WorkflowStarter is the part of the Temporal client the reflector needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options tc.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tc.WorkflowRun, error)
}

// WorkflowReflector hands task transitions to a durable reconciliation
// workflow. When the workflow cannot be started the change is applied through
// fallback instead.
type WorkflowReflector struct {
	starter  WorkflowStarter
	workflow interface{}
	fallback task.Reflector
	logger   zerolog.Logger
}

func NewWorkflowReflector(starter WorkflowStarter, workflow interface{}, fallback task.Reflector, logger zerolog.Logger) *WorkflowReflector {
	return &WorkflowReflector{
		starter:  starter,
		workflow: workflow,
		fallback: fallback,
		logger:   logger.With().Str("component", "task_sync_reflector").Logger(),
	}
}

func (r *WorkflowReflector) Reflect(ctx context.Context, change models.TaskStatusChange) error {
	opts := tc.StartWorkflowOptions{
		ID:        WorkflowID(change),
		TaskQueue: TaskQueueName,
	}
	run, err := r.starter.ExecuteWorkflow(ctx, opts, r.workflow, change)
	if err == nil {
		r.logger.Debug().Str("workflow_id", opts.ID).Str("run_id", runID(run)).Msg("task status sync scheduled")
		return nil
	}

	r.logger.Warn().Err(err).Str("task_id", change.TaskID).Msg("could not start task status sync workflow, applying in-process")
	if r.fallback == nil {
		return err
	}
	return r.fallback.Reflect(ctx, change)
}

func runID(run tc.WorkflowRun) string {
	if run == nil {
		return ""
	}
	return run.GetRunID()
}
