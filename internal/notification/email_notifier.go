package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/govindrajpootecosoul/project-tracker/internal/config"
	"github.com/govindrajpootecosoul/project-tracker/internal/models"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// EmailNotifier mirrors feed notifications to the recipient's mailbox.
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	users    repository.UserRepository
	send     sendFunc
	logger   zerolog.Logger
}

func NewEmailNotifier(cfg config.EmailConfig, users repository.UserRepository, logger zerolog.Logger) (*EmailNotifier, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, errors.New("smtp_host is required for email notifier")
	}
	if from == "" {
		return nil, errors.New("from is required for email notifier")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &EmailNotifier{
		host:     host,
		port:     port,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		from:     from,
		users:    users,
		send:     timeoutSender(defaultSMTPTimeout),
		logger:   logger.With().Str("notifier", "email").Logger(),
	}, nil
}

func (n *EmailNotifier) Notify(ctx context.Context, notif models.Notification) error {
	user, err := n.users.GetUserByID(ctx, notif.UserID)
	if err != nil {
		return errors.Wrap(err, "resolve recipient")
	}
	if !user.IsActive || strings.TrimSpace(user.Email) == "" {
		return nil
	}

	subject := fmt.Sprintf("[Tracker] %s", strings.TrimSpace(notif.Title))
	if subject == "[Tracker] " {
		subject = "[Tracker] Notification"
	}

	body := strings.Builder{}
	body.WriteString(strings.TrimSpace(notif.Message))
	body.WriteString("\n\n")
	body.WriteString(fmt.Sprintf("Type: %s\n", notif.Type))
	if notif.Link != "" {
		body.WriteString(fmt.Sprintf("Open: %s\n", notif.Link))
	}
	body.WriteString(fmt.Sprintf("Created: %s\n", notif.CreatedAt.Format("2006-01-02 15:04:05 MST")))

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		n.from, user.Email, subject)

	message := []byte(headers + body.String())
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	if err := n.send(ctx, addr, auth, n.from, []string{user.Email}, message); err != nil {
		return err
	}

	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("type", string(notif.Type)).
		Str("recipient", user.ID).
		Msg("email notification sent")
	return nil
}

func (n *EmailNotifier) String() string {
	return "EmailNotifier"
}
