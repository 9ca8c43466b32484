package activities

import (
	"context"

	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/task"
	"github.com/govindrajpootecosoul/project-tracker/internal/temporal"
	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"
)

type Activities struct {
	Requests task.RequestApplier
}

// finalKinds are the error kinds a retry cannot fix. Conflict is left out: it
// means the compare-and-swap loop lost to concurrent writers.
var finalKinds = map[apperr.Kind]bool{
	apperr.KindValidation:   true,
	apperr.KindNotFound:     true,
	apperr.KindForbidden:    true,
	apperr.KindPrecondition: true,
}

// ReflectTaskStatusActivity applies a task transition to its originating
// request. Classified failures other than Conflict are final; anything else
// is retried by the workflow's retry policy.
func (a *Activities) ReflectTaskStatusActivity(ctx context.Context, change temporal.TaskSyncParams) (temporal.TaskSyncResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Reflecting task status onto request", "taskID", change.TaskID, "requestID", change.RequestID, "status", change.Status)

	req, applied, err := a.Requests.ApplyTaskStatus(ctx, change)
	if err != nil {
		if kind := apperr.KindOf(err); finalKinds[kind] {
			logger.Error("Task status cannot be reflected", "error", err)
			return temporal.TaskSyncResult{}, sdktemporal.NewNonRetryableApplicationError(err.Error(), string(kind), err)
		}
		logger.Warn("Failed to reflect task status, will retry", "error", err)
		return temporal.TaskSyncResult{}, err
	}
	return temporal.TaskSyncResult{RequestID: change.RequestID, Applied: applied, Status: req.Status}, nil
}
