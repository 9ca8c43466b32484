package models

import "time"

type TaskStatus string

const (
	TaskYetToStart TaskStatus = "YTS"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskOnHold     TaskStatus = "ON_HOLD"
	TaskRecurring  TaskStatus = "RECURRING"
	TaskCompleted  TaskStatus = "COMPLETED"
)

var TaskStatuses = []TaskStatus{
	TaskYetToStart,
	TaskInProgress,
	TaskOnHold,
	TaskRecurring,
	TaskCompleted,
}

func (s TaskStatus) IsValid() bool {
	for _, known := range TaskStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Task is the execution unit spawned by a request assignment. Generic task CRUD
// lives elsewhere; only the fields the workflow needs are modelled here.
type Task struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	Status               TaskStatus `json:"status"`
	AssigneeID           *string    `json:"assigneeId"`
	CreatedBy            string     `json:"createdBy"`
	OriginatingRequestID *string    `json:"originatingRequestId"`
	StatusChangedAt      time.Time  `json:"statusChangedAt"`
	Version              int64      `json:"version"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// TaskStatusChange describes a committed task transition that may need to be
// reflected onto the originating request.
type TaskStatusChange struct {
	TaskID    string     `json:"taskId"`
	RequestID string     `json:"requestId"`
	Status    TaskStatus `json:"status"`
	ChangedAt time.Time  `json:"changedAt"`
	ChangedBy string     `json:"changedBy"`
}
