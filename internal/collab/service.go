// Package collab runs the collaboration invite lifecycle on credentials,
// projects and subscriptions.
package collab

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/govindrajpootecosoul/project-tracker/internal/metrics"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/notification"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// InviteInput names the invitee by user id or, for people outside the
// organisation, by email.
type InviteInput struct {
	TargetID      string                  `json:"targetId"`
	InviteeUserID *string                 `json:"inviteeUserId"`
	InviteeEmail  string                  `json:"inviteeEmail"`
	Role          models.CollaboratorRole `json:"role"`
}

type Service interface {
	Invite(ctx context.Context, caller models.User, kind models.TargetKind, in InviteInput) (models.CollaborationInvite, error)
	// Respond accepts or declines. Responding again to an invite the invitee
	// already resolved returns it unchanged.
	Respond(ctx context.Context, caller models.User, id string, accept bool) (models.CollaborationInvite, error)
	Cancel(ctx context.Context, caller models.User, id string) (models.CollaborationInvite, error)
	List(ctx context.Context, caller models.User, kind models.TargetKind, direction models.RequestDirection) ([]models.CollaborationInvite, error)
}

type Options struct {
	// InviteURLTemplate receives the invite id and target kind, in that order.
	InviteURLTemplate string
}

type service struct {
	invites       repository.InviteRepository
	targets       repository.TargetRepository
	users         repository.UserRepository
	notifications notification.Service
	mailer        notification.InviteMailer
	bus           eventbus.Bus
	opts          Options
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(
	invites repository.InviteRepository,
	targets repository.TargetRepository,
	users repository.UserRepository,
	notifications notification.Service,
	mailer notification.InviteMailer,
	bus eventbus.Bus,
	opts Options,
	logger zerolog.Logger,
) Service {
	return &service{
		invites:       invites,
		targets:       targets,
		users:         users,
		notifications: notifications,
		mailer:        mailer,
		bus:           bus,
		opts:          opts,
		logger:        logger.With().Str("component", "collab_service").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

var refreshTopics = map[models.TargetKind]eventbus.Topic{
	models.TargetCredential:   eventbus.TopicRefreshCredentials,
	models.TargetProject:      eventbus.TopicRefreshProjects,
	models.TargetSubscription: eventbus.TopicRefreshSubscriptions,
}

func (s *service) Invite(ctx context.Context, caller models.User, kind models.TargetKind, in InviteInput) (models.CollaborationInvite, error) {
	if !kind.IsValid() {
		return models.CollaborationInvite{}, apperr.Validation("unknown target kind %q", kind)
	}
	in.TargetID = strings.TrimSpace(in.TargetID)
	if in.TargetID == "" {
		return models.CollaborationInvite{}, apperr.Validation("targetId is required")
	}
	if in.Role == "" {
		in.Role = models.CollaboratorViewer
	}
	if !in.Role.IsValid() {
		return models.CollaborationInvite{}, apperr.Validation("role must be one of viewer member editor")
	}

	invitee, err := s.resolveInvitee(ctx, in)
	if err != nil {
		return models.CollaborationInvite{}, err
	}
	if invitee.ID == caller.ID && invitee.ID != "" {
		return models.CollaborationInvite{}, apperr.Validation("you cannot invite yourself")
	}

	target, err := s.loadTarget(ctx, kind, in.TargetID)
	if err != nil {
		return models.CollaborationInvite{}, err
	}
	if !target.Shareable {
		return models.CollaborationInvite{}, apperr.PreconditionFailed("%s %s cannot be shared", kind, target.Name)
	}
	if ok, err := s.canInvite(ctx, caller, target); err != nil {
		return models.CollaborationInvite{}, err
	} else if !ok {
		return models.CollaborationInvite{}, apperr.Forbidden("only the owner or an editor can invite collaborators")
	}
	if invitee.ID != "" && invitee.ID == target.OwnerID {
		return models.CollaborationInvite{}, apperr.Validation("the invitee already owns this %s", kind)
	}

	invite := models.CollaborationInvite{
		ID:           uuid.NewString(),
		TargetKind:   kind,
		TargetID:     target.ID,
		InviterID:    caller.ID,
		InviteeEmail: invitee.Email,
		Role:         in.Role,
		Status:       models.InvitePending,
	}
	if invitee.ID != "" {
		inviteeID := invitee.ID
		invite.InviteeUserID = &inviteeID
	}
	saved, err := s.invites.UpsertPending(ctx, invite)
	if err != nil {
		return models.CollaborationInvite{}, err
	}

	s.logger.Info().
		Str("invite_id", saved.ID).
		Str("target_kind", string(kind)).
		Str("target_id", target.ID).
		Str("inviter", caller.ID).
		Str("invitee", saved.InviteeKey()).
		Msg("collaboration invite sent")

	if saved.InviteeUserID != nil {
		s.notifications.Notify(ctx, notification.Message{
			UserID:  *saved.InviteeUserID,
			Type:    models.InviteNotificationType(kind),
			Title:   "Collaboration invite",
			Message: fmt.Sprintf("%s invited you to %s %q as %s.", displayName(caller), kind, target.Name, saved.Role),
			Link:    notification.InviteLink(saved.ID, kind),
		})
	} else {
		s.mailInvite(saved, target)
	}
	s.publish(saved)
	return saved, nil
}

// resolveInvitee returns the invitee as a user. Out-of-org invitees come back
// with an empty ID and only the email set.
func (s *service) resolveInvitee(ctx context.Context, in InviteInput) (models.User, error) {
	if in.InviteeUserID != nil && strings.TrimSpace(*in.InviteeUserID) != "" {
		user, err := s.users.GetUserByID(ctx, strings.TrimSpace(*in.InviteeUserID))
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !user.IsActive) {
			return models.User{}, apperr.Validation("invitee %s does not exist", *in.InviteeUserID)
		}
		return user, err
	}

	email := strings.ToLower(strings.TrimSpace(in.InviteeEmail))
	if email == "" {
		return models.User{}, apperr.Validation("inviteeUserId or inviteeEmail is required")
	}
	if !strings.Contains(email, "@") {
		return models.User{}, apperr.Validation("inviteeEmail is not a valid email address")
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return models.User{Email: email}, nil
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *service) canInvite(ctx context.Context, caller models.User, target models.Target) (bool, error) {
	if caller.IsSuperAdmin() || target.OwnerID == caller.ID {
		return true, nil
	}
	member, err := s.targets.GetCollaborator(ctx, target.Kind, target.ID, caller.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.Role == models.CollaboratorEditor, nil
}

func (s *service) mailInvite(invite models.CollaborationInvite, target models.Target) {
	if s.mailer == nil {
		return
	}
	link := fmt.Sprintf(s.opts.InviteURLTemplate, url.PathEscape(invite.ID), url.QueryEscape(string(invite.TargetKind)))
	if err := s.mailer.SendInvite(invite.InviteeEmail, target.Name, link); err != nil {
		metrics.RecordNotificationFailure("email")
		s.logger.Error().Err(err).
			Str("invite_id", invite.ID).
			Str("recipient", invite.InviteeEmail).
			Msg("failed to send invite email")
	}
}

func (s *service) Respond(ctx context.Context, caller models.User, id string, accept bool) (models.CollaborationInvite, error) {
	invite, err := s.load(ctx, id)
	if err != nil {
		return models.CollaborationInvite{}, err
	}
	if !invite.IsInvitee(caller) {
		return models.CollaborationInvite{}, apperr.Forbidden("only the invitee can respond to this invite")
	}
	if invite.Status == models.InviteCancelled {
		return models.CollaborationInvite{}, apperr.Conflict("this invite was cancelled")
	}
	if invite.Status.IsTerminal() {
		return invite, nil
	}

	status := models.InviteDeclined
	var grant *models.Collaborator
	if accept {
		status = models.InviteAccepted
		grant = &models.Collaborator{
			TargetKind: invite.TargetKind,
			TargetID:   invite.TargetID,
			UserID:     caller.ID,
			Role:       invite.Role,
			GrantedAt:  s.now(),
		}
	}

	resolved, err := s.invites.Resolve(ctx, invite.ID, status, s.now(), grant)
	if errors.Is(err, repository.ErrStale) {
		// lost to a concurrent respond or cancel; report what won
		current, err := s.load(ctx, id)
		if err != nil {
			return models.CollaborationInvite{}, err
		}
		if current.Status == models.InviteCancelled {
			return models.CollaborationInvite{}, apperr.Conflict("this invite was cancelled")
		}
		return current, nil
	}
	if err != nil {
		return models.CollaborationInvite{}, err
	}

	metrics.RecordInviteResolution(string(resolved.TargetKind), string(resolved.Status))
	s.logger.Info().
		Str("invite_id", resolved.ID).
		Str("status", string(resolved.Status)).
		Str("by", caller.ID).
		Msg("collaboration invite resolved")

	verb := "declined"
	if accept {
		verb = "accepted"
	}
	s.notifications.Notify(ctx, notification.Message{
		UserID:  resolved.InviterID,
		Type:    models.InviteNotificationType(resolved.TargetKind),
		Title:   "Invite " + verb,
		Message: fmt.Sprintf("%s %s your invite to %s %q.", displayName(caller), verb, resolved.TargetKind, s.targetName(ctx, resolved)),
		Link:    notification.InviteLink(resolved.ID, resolved.TargetKind),
	})
	s.publish(resolved)
	return resolved, nil
}

func (s *service) Cancel(ctx context.Context, caller models.User, id string) (models.CollaborationInvite, error) {
	invite, err := s.load(ctx, id)
	if err != nil {
		return models.CollaborationInvite{}, err
	}
	if invite.InviterID != caller.ID {
		return models.CollaborationInvite{}, apperr.Forbidden("only the inviter can cancel this invite")
	}
	if invite.Status != models.InvitePending {
		return models.CollaborationInvite{}, apperr.Conflict("invite is already %s", invite.Status)
	}

	cancelled, err := s.invites.Resolve(ctx, invite.ID, models.InviteCancelled, s.now(), nil)
	if errors.Is(err, repository.ErrStale) {
		current, loadErr := s.load(ctx, id)
		if loadErr != nil {
			return models.CollaborationInvite{}, loadErr
		}
		return models.CollaborationInvite{}, apperr.Conflict("invite is already %s", current.Status)
	}
	if err != nil {
		return models.CollaborationInvite{}, err
	}

	metrics.RecordInviteResolution(string(cancelled.TargetKind), string(cancelled.Status))
	s.logger.Info().Str("invite_id", cancelled.ID).Str("by", caller.ID).Msg("collaboration invite cancelled")

	if cancelled.InviteeUserID != nil {
		s.notifications.Notify(ctx, notification.Message{
			UserID:  *cancelled.InviteeUserID,
			Type:    models.InviteNotificationType(cancelled.TargetKind),
			Title:   "Invite withdrawn",
			Message: fmt.Sprintf("%s withdrew the invite to %s %q.", displayName(caller), cancelled.TargetKind, s.targetName(ctx, cancelled)),
			Link:    notification.InviteLink(cancelled.ID, cancelled.TargetKind),
		})
	}
	s.publish(cancelled)
	return cancelled, nil
}

func (s *service) List(ctx context.Context, caller models.User, kind models.TargetKind, direction models.RequestDirection) ([]models.CollaborationInvite, error) {
	if !kind.IsValid() {
		return nil, apperr.Validation("unknown target kind %q", kind)
	}
	if !direction.IsValid() {
		return nil, apperr.Validation("direction must be sent or received")
	}
	filter := repository.InviteFilter{Kind: kind, Direction: direction}
	if direction == models.DirectionSent {
		filter.InviterID = caller.ID
	} else {
		filter.InviteeUserID = caller.ID
		filter.InviteeEmail = strings.ToLower(strings.TrimSpace(caller.Email))
	}
	invites, err := s.invites.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if invites == nil {
		invites = []models.CollaborationInvite{}
	}
	return invites, nil
}

func (s *service) load(ctx context.Context, id string) (models.CollaborationInvite, error) {
	invite, err := s.invites.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.CollaborationInvite{}, apperr.NotFound("invite %s not found", id)
	}
	return invite, err
}

func (s *service) loadTarget(ctx context.Context, kind models.TargetKind, id string) (models.Target, error) {
	target, err := s.targets.GetTarget(ctx, kind, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Target{}, apperr.NotFound("%s %s not found", kind, id)
	}
	return target, err
}

func (s *service) targetName(ctx context.Context, invite models.CollaborationInvite) string {
	target, err := s.targets.GetTarget(ctx, invite.TargetKind, invite.TargetID)
	if err != nil {
		return invite.TargetID
	}
	return target.Name
}

// publish tells both parties' clients to refetch the collection of this kind.
func (s *service) publish(invite models.CollaborationInvite) {
	audience := []string{invite.InviterID}
	if invite.InviteeUserID != nil {
		audience = append(audience, *invite.InviteeUserID)
	}
	s.bus.Publish(eventbus.Event{
		Topic:    refreshTopics[invite.TargetKind],
		EntityID: invite.TargetID,
		Audience: audience,
	})
}

func displayName(u models.User) string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Email
}
