package models

import "time"

type NotificationType string

const (
	NotificationRequest            NotificationType = "REQUEST"
	NotificationComment            NotificationType = "COMMENT"
	NotificationInvite             NotificationType = "INVITE"
	NotificationTaskAssigned       NotificationType = "TASK_ASSIGNED"
	NotificationProjectInvite      NotificationType = "PROJECT_INVITE"
	NotificationSubscriptionInvite NotificationType = "SUBSCRIPTION_INVITE"
)

// InviteNotificationType picks the feed type used for invites on the given kind.
func InviteNotificationType(kind TargetKind) NotificationType {
	switch kind {
	case TargetProject:
		return NotificationProjectInvite
	case TargetSubscription:
		return NotificationSubscriptionInvite
	default:
		return NotificationInvite
	}
}

// Notification is append-only except for Read/ReadAt, which only move from
// unread to read.
type Notification struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"userId" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	Link      string           `json:"link" db:"link"`
	Read      bool             `json:"read" db:"read"`
	ReadAt    *time.Time       `json:"readAt,omitempty" db:"read_at"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}

// MarkRead flips the notification to read. Calling it again keeps the first
// ReadAt.
func (n *Notification) MarkRead(at time.Time) {
	if n.Read && n.ReadAt != nil {
		return
	}
	t := at.UTC()
	n.Read = true
	n.ReadAt = &t
}
