package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/govindrajpootecosoul/project-tracker/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// InviteMailer delivers collaboration invites to people without an account.
type InviteMailer interface {
	SendInvite(recipientEmail, targetName, inviteURL string) error
}

// NewInviteMailer returns an SMTP mailer when SMTP is configured and a
// log-only mailer otherwise.
func NewInviteMailer(cfg config.EmailConfig, logger zerolog.Logger) (InviteMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return NewLogInviteMailer(logger), nil
	}
	return NewSMTPInviteMailer(cfg)
}

// SMTPInviteMailer sends invite emails using an SMTP server.
type SMTPInviteMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	send     sendFunc
}

// NewSMTPInviteMailer constructs a new SMTPInviteMailer from config.
func NewSMTPInviteMailer(cfg config.EmailConfig) (*SMTPInviteMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, errors.New("smtp_host is required")
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("email from address is required")
	}

	return &SMTPInviteMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		send:     timeoutSender(defaultSMTPTimeout),
	}, nil
}

// SendInvite dispatches an invitation email to a prospective collaborator.
func (m *SMTPInviteMailer) SendInvite(recipientEmail, targetName, inviteURL string) error {
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		m.from, recipientEmail, fmt.Sprintf("You have been invited to collaborate on %s", targetName))

	message := []byte(headers + inviteBody(targetName, inviteURL))

	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if strings.TrimSpace(m.username) != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return m.send(context.Background(), addr, auth, m.from, []string{recipientEmail}, message)
}

func inviteBody(targetName, inviteURL string) string {
	body := strings.Builder{}
	body.WriteString("Hello,\n\n")
	body.WriteString(fmt.Sprintf("You've been invited to collaborate on %s.\n", targetName))
	body.WriteString("Open the link below to accept or decline the invitation:\n\n")
	body.WriteString(inviteURL + "\n\n")
	body.WriteString("If you did not expect this email, you can ignore it.\n")
	return body.String()
}

// LogInviteMailer only logs the invite. Used when SMTP is not configured.
type LogInviteMailer struct {
	logger zerolog.Logger
}

func NewLogInviteMailer(logger zerolog.Logger) *LogInviteMailer {
	return &LogInviteMailer{logger: logger.With().Str("component", "invite_mailer").Logger()}
}

func (m *LogInviteMailer) SendInvite(recipientEmail, targetName, inviteURL string) error {
	m.logger.Info().
		Str("recipient", recipientEmail).
		Str("target", targetName).
		Str("url", inviteURL).
		Msg("invite email not sent, smtp is not configured")
	return nil
}
