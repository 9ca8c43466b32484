package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/govindrajpootecosoul/project-tracker/internal/apperr"
	"github.com/govindrajpootecosoul/project-tracker/internal/metrics"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Message is a notification to be written to one user's feed.
type Message struct {
	UserID  string
	Type    models.NotificationType
	Title   string
	Message string
	Link    string
}

// Service is the notification dispatcher. Notify is a side effect of other
// operations and never fails its caller; the read operations are plain queries.
type Service interface {
	Notify(ctx context.Context, msg Message)
	List(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

func (s *service) Notify(ctx context.Context, msg Message) {
	userID := strings.TrimSpace(msg.UserID)
	if userID == "" || msg.Type == "" {
		s.logger.Warn().Str("type", string(msg.Type)).Msg("dropping notification without recipient or type")
		metrics.RecordNotificationFailure("persist")
		return
	}
	title := strings.TrimSpace(msg.Title)
	if title == "" {
		title = string(msg.Type)
	}

	notif, err := s.repo.Create(ctx, models.Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    msg.Type,
		Title:   title,
		Message: strings.TrimSpace(msg.Message),
		Link:    msg.Link,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("user_id", userID).
			Str("type", string(msg.Type)).
			Msg("failed to persist notification")
		metrics.RecordNotificationFailure("persist")
		return
	}
	metrics.RecordNotificationCreated(string(notif.Type))

	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
			metrics.RecordNotificationFailure("deliver")
		}
	}
}

func (s *service) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	return notifications, nil
}

func (s *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	notif, err := s.repo.MarkRead(ctx, userID, notificationID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Notification{}, apperr.NotFound("notification %s not found", notificationID)
	}
	return notif, err
}

func (s *service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
