package request

import (
	"context"
	"fmt"

	"github.com/govindrajpootecosoul/project-tracker/internal/metrics"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/notification"
)

// canManage covers status, deadline and assignment changes.
func canManage(caller models.User, req models.Request) bool {
	return caller.IsAdminOf(req.ToDepartment) || req.IsAssignee(caller.ID)
}

func canView(caller models.User, req models.Request) bool {
	if caller.IsSuperAdmin() || req.CreatedBy == caller.ID || req.IsAssignee(caller.ID) {
		return true
	}
	return req.ToDepartment != nil && caller.DepartmentID != "" && *req.ToDepartment == caller.DepartmentID
}

// notifyCounterparts notifies the other side of a change. When the creator
// acts, the assignee hears about it, or the target department admins if
// nobody is assigned yet. Anyone else acting notifies the creator.
func (s *service) notifyCounterparts(ctx context.Context, caller models.User, req models.Request, msg notification.Message) {
	var recipients []string
	switch {
	case caller.ID != req.CreatedBy:
		recipients = []string{req.CreatedBy}
	case req.AssignedTo != nil:
		recipients = []string{*req.AssignedTo}
	case req.ToDepartment != nil:
		admins, err := s.roster.Admins(ctx, *req.ToDepartment)
		if err != nil {
			s.logger.Warn().Err(err).Str("request_id", req.ID).Msg("could not resolve department admins for notification")
			metrics.RecordNotificationFailure("deliver")
			return
		}
		for _, admin := range admins {
			recipients = append(recipients, admin.ID)
		}
	}

	if msg.Link == "" {
		msg.Link = notification.RequestLink(req.ID)
	}
	seen := map[string]bool{}
	for _, userID := range recipients {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		s.notifyUser(ctx, caller, userID, msg)
	}
}

func (s *service) notifyUser(ctx context.Context, caller models.User, userID string, msg notification.Message) {
	if userID == "" || userID == caller.ID {
		return
	}
	msg.UserID = userID
	s.notifications.Notify(ctx, msg)
}

func requestMessage(req models.Request, what string) string {
	return fmt.Sprintf("%q %s.", req.Title, what)
}
