package notification

import (
	"net/url"

	"github.com/govindrajpootecosoul/project-tracker/internal/models"
)

// RequestLink points a feed entry at a request.
func RequestLink(requestID string) string {
	return "/requests/" + url.PathEscape(requestID)
}

// InviteLink points a feed entry at an invite. Clients read inviteId and
// targetKind from the query string to open the respond dialog.
func InviteLink(inviteID string, kind models.TargetKind) string {
	q := url.Values{}
	q.Set("inviteId", inviteID)
	q.Set("targetKind", string(kind))
	return "/collab-invites?" + q.Encode()
}
