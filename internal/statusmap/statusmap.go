// Package statusmap maps the task status vocabulary onto the request one and
// holds the request transition table.
//
// The task→request mapping is lossy on purpose (RECURRING and IN_PROGRESS
// collapse) and there is no inverse: a request moved directly uses its own
// vocabulary.
package statusmap

import "github.com/govindrajpootecosoul/project-tracker/internal/models"

var taskToRequest = map[models.TaskStatus]models.RequestStatus{
	models.TaskYetToStart: models.RequestApproved,
	models.TaskInProgress: models.RequestInProgress,
	models.TaskOnHold:     models.RequestWaitingInfo,
	models.TaskRecurring:  models.RequestInProgress,
	models.TaskCompleted:  models.RequestCompleted,
}

// TaskStatusToRequestStatus returns the request status a task status implies.
// ok is false only for values outside the task vocabulary.
func TaskStatusToRequestStatus(status models.TaskStatus) (models.RequestStatus, bool) {
	mapped, ok := taskToRequest[status]
	return mapped, ok
}

var working = []models.RequestStatus{
	models.RequestInProgress,
	models.RequestWaitingInfo,
	models.RequestCompleted,
}

var transitions = map[models.RequestStatus][]models.RequestStatus{
	models.RequestSubmitted:   {models.RequestApproved, models.RequestRejected},
	models.RequestApproved:    working,
	models.RequestInProgress:  working,
	models.RequestWaitingInfo: working,
	models.RequestCompleted:   {models.RequestClosed},
	models.RequestRejected:    nil,
	models.RequestClosed:      nil,
}

// CanTransition reports whether a direct status write from → to is legal.
func CanTransition(from, to models.RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the legal targets from a status.
func AllowedTransitions(from models.RequestStatus) []models.RequestStatus {
	next := transitions[from]
	out := make([]models.RequestStatus, len(next))
	copy(out, next)
	return out
}

// SeedTaskStatus picks the initial status of a task spawned by assigning a
// request. It only seeds; it is not a mapping back from request to task.
func SeedTaskStatus(status models.RequestStatus) models.TaskStatus {
	switch status {
	case models.RequestInProgress:
		return models.TaskInProgress
	case models.RequestWaitingInfo:
		return models.TaskOnHold
	default:
		return models.TaskYetToStart
	}
}

// AcceptsDerivedStatus reports whether a task-derived write may still touch a
// request in the given status. Terminal requests are immutable, and a
// SUBMITTED request waits for its approve or reject decision.
func AcceptsDerivedStatus(current models.RequestStatus) bool {
	return current.IsValid() && !current.IsTerminal() && current != models.RequestSubmitted
}
