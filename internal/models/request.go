package models

import "time"

type RequestType string

const (
	RequestTypeAutomation RequestType = "AUTOMATION"
	RequestTypeData       RequestType = "DATA"
	RequestTypeAccess     RequestType = "ACCESS"
	RequestTypeSupport    RequestType = "SUPPORT"
	RequestTypeOther      RequestType = "OTHER"
)

func (t RequestType) IsValid() bool {
	switch t {
	case RequestTypeAutomation, RequestTypeData, RequestTypeAccess, RequestTypeSupport, RequestTypeOther:
		return true
	default:
		return false
	}
}

type RequestPriority string

const (
	PriorityLow      RequestPriority = "LOW"
	PriorityMedium   RequestPriority = "MEDIUM"
	PriorityHigh     RequestPriority = "HIGH"
	PriorityCritical RequestPriority = "CRITICAL"
)

func (p RequestPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

type RequestStatus string

const (
	RequestSubmitted   RequestStatus = "SUBMITTED"
	RequestApproved    RequestStatus = "APPROVED"
	RequestRejected    RequestStatus = "REJECTED"
	RequestInProgress  RequestStatus = "IN_PROGRESS"
	RequestWaitingInfo RequestStatus = "WAITING_INFO"
	RequestCompleted   RequestStatus = "COMPLETED"
	RequestClosed      RequestStatus = "CLOSED"
)

// RequestStatuses lists every request status in lifecycle order.
var RequestStatuses = []RequestStatus{
	RequestSubmitted,
	RequestApproved,
	RequestRejected,
	RequestInProgress,
	RequestWaitingInfo,
	RequestCompleted,
	RequestClosed,
}

func (s RequestStatus) IsValid() bool {
	for _, known := range RequestStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestRejected || s == RequestClosed
}

// Request is a cross-department work item.
type Request struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Type              RequestType     `json:"requestType"`
	Priority          RequestPriority `json:"priority"`
	Status            RequestStatus   `json:"status"`
	FromDepartment    string          `json:"fromDepartment"`
	ToDepartment      *string         `json:"toDepartment"`
	CreatedBy         string          `json:"createdBy"`
	AssignedTo        *string         `json:"assignedTo"`
	TentativeDeadline *time.Time      `json:"tentativeDeadline"`
	StatusChangedAt   time.Time       `json:"statusChangedAt"`
	Version           int64           `json:"version"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IsAssignee reports whether userID is the current assignee.
func (r Request) IsAssignee(userID string) bool {
	return r.AssignedTo != nil && *r.AssignedTo != "" && *r.AssignedTo == userID
}

// RequestDirection selects which side of a request a listing is for.
type RequestDirection string

const (
	DirectionSent     RequestDirection = "sent"
	DirectionReceived RequestDirection = "received"
)

func (d RequestDirection) IsValid() bool {
	return d == DirectionSent || d == DirectionReceived
}
