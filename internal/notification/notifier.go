package notification

import (
	"context"

	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/rs/zerolog"
)

// Notifier fans a persisted notification out to another channel.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// BusNotifier tells the recipient's clients to refresh their feed.
type BusNotifier struct {
	bus eventbus.Bus
}

func NewBusNotifier(bus eventbus.Bus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

func (n *BusNotifier) Notify(_ context.Context, notif models.Notification) error {
	n.bus.Publish(eventbus.Event{
		Topic:    eventbus.TopicRefreshNotifications,
		EntityID: notif.ID,
		Audience: []string{notif.UserID},
	})
	return nil
}

func (n *BusNotifier) String() string {
	return "BusNotifier"
}

func logNotifyError(logger zerolog.Logger, err error, channel string, notif models.Notification) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_id", notif.ID).
		Str("type", string(notif.Type)).
		Str("channel", channel).
		Msg("failed to deliver notification")
}
