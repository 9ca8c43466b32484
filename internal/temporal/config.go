package temporal

import (
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
)

// TaskQueueName is the Temporal task queue used for task to request reconciliation.
const TaskQueueName = "TRACKER_TASK_SYNC"

// TaskSyncWorkflowIDPrefix prefixes reconciliation workflow IDs. The rest of
// the ID is the task id and the transition timestamp, so a retried start of
// the same transition is deduplicated by the server.
const TaskSyncWorkflowIDPrefix = "task-status-sync-"

// DefaultActivityTimeout bounds one reconciliation attempt.
const DefaultActivityTimeout = 30 * time.Second

// TaskSyncParams is the workflow input: one committed task transition.
type TaskSyncParams = models.TaskStatusChange

// TaskSyncResult reports what the reconciliation did to the request.
type TaskSyncResult struct {
	RequestID string               `json:"requestId"`
	Applied   bool                 `json:"applied"`
	Status    models.RequestStatus `json:"status,omitempty"`
}

// WorkflowID returns the deduplicating workflow ID of a transition.
func WorkflowID(change TaskSyncParams) string {
	return TaskSyncWorkflowIDPrefix + change.TaskID + "-" + change.ChangedAt.UTC().Format("20060102T150405.000000000")
}
