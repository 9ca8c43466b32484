package workflows

import (
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/temporal"
	"github.com/govindrajpootecosoul/project-tracker/internal/temporal/activities"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// TaskStatusSyncWorkflow carries one committed task transition over to the
// originating request, retrying until the request store accepts or rejects it.
func TaskStatusSyncWorkflow(ctx workflow.Context, params temporal.TaskSyncParams) (temporal.TaskSyncResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DefaultActivityTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	logger.Info("Starting task status sync", "TaskID", params.TaskID, "RequestID", params.RequestID, "Status", params.Status)

	var a *activities.Activities
	var result temporal.TaskSyncResult
	if err := workflow.ExecuteActivity(ctx, a.ReflectTaskStatusActivity, params).Get(ctx, &result); err != nil {
		logger.Error("Task status sync failed.", "error", err)
		return temporal.TaskSyncResult{}, err
	}

	logger.Info("Task status sync finished", "RequestID", result.RequestID, "Applied", result.Applied)
	return result, nil
}
