package models

import (
	"strings"
	"time"
)

type TargetKind string

const (
	TargetCredential   TargetKind = "credential"
	TargetProject      TargetKind = "project"
	TargetSubscription TargetKind = "subscription"
)

func (k TargetKind) IsValid() bool {
	switch k {
	case TargetCredential, TargetProject, TargetSubscription:
		return true
	default:
		return false
	}
}

type InviteStatus string

const (
	InvitePending   InviteStatus = "PENDING"
	InviteAccepted  InviteStatus = "ACCEPTED"
	InviteDeclined  InviteStatus = "DECLINED"
	InviteCancelled InviteStatus = "CANCELLED"
)

func (s InviteStatus) IsTerminal() bool {
	return s == InviteAccepted || s == InviteDeclined || s == InviteCancelled
}

type CollaboratorRole string

const (
	CollaboratorViewer CollaboratorRole = "viewer"
	CollaboratorMember CollaboratorRole = "member"
	CollaboratorEditor CollaboratorRole = "editor"
)

func (r CollaboratorRole) IsValid() bool {
	switch r {
	case CollaboratorViewer, CollaboratorMember, CollaboratorEditor:
		return true
	default:
		return false
	}
}

// CollaborationInvite is a share proposal on a credential, project or subscription.
// The invitee is either a known user or a raw email for out-of-org invites.
type CollaborationInvite struct {
	ID            string           `json:"id"`
	TargetKind    TargetKind       `json:"targetKind"`
	TargetID      string           `json:"targetId"`
	InviterID     string           `json:"inviter"`
	InviteeUserID *string          `json:"inviteeUserId"`
	InviteeEmail  string           `json:"inviteeEmail"`
	Role          CollaboratorRole `json:"role"`
	Status        InviteStatus     `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	RespondedAt   *time.Time       `json:"respondedAt,omitempty"`
}

// InviteeKey identifies the invitee for the one-pending-invite-per-pair rule.
func (i CollaborationInvite) InviteeKey() string {
	return InviteeKey(i.InviteeUserID, i.InviteeEmail)
}

// InviteeKey prefers the lowercased email so an invite sent before the person
// had an account and one sent to their account share a key. The user id is
// only used when no email is known.
func InviteeKey(userID *string, email string) string {
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		return "email:" + email
	}
	if userID != nil && strings.TrimSpace(*userID) != "" {
		return "user:" + strings.TrimSpace(*userID)
	}
	return "email:"
}

// IsInvitee reports whether the user is the addressee, by id or by email.
func (i CollaborationInvite) IsInvitee(u User) bool {
	if i.InviteeUserID != nil && *i.InviteeUserID == u.ID {
		return true
	}
	return u.MatchesEmail(i.InviteeEmail)
}

type PrivacyLevel string

const (
	PrivacyPublic  PrivacyLevel = "PUBLIC"
	PrivacyPrivate PrivacyLevel = "PRIVATE"
)

// Target is the read-only view of a shareable resource.
type Target struct {
	Kind      TargetKind `json:"kind"`
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	OwnerID   string     `json:"ownerId"`
	Shareable bool       `json:"shareable"`
}

// Collaborator is a membership granted on a target.
type Collaborator struct {
	TargetKind TargetKind       `json:"targetKind"`
	TargetID   string           `json:"targetId"`
	UserID     string           `json:"userId"`
	Role       CollaboratorRole `json:"role"`
	GrantedAt  time.Time        `json:"grantedAt"`
}
