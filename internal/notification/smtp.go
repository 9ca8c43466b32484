package notification

import (
	"context"
	"crypto/tls"
	"net"
	"net/smtp"
	"time"

	"github.com/pkg/errors"
)

// defaultSMTPTimeout bounds one whole delivery: dial, handshake and DATA.
const defaultSMTPTimeout = 10 * time.Second

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// timeoutSender delivers like smtp.SendMail but gives up after timeout or when
// ctx ends, so a stalled server cannot hold the caller.
func timeoutSender(timeout time.Duration) sendFunc {
	return func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return errors.Wrap(err, "dial smtp")
		}
		deadline, _ := ctx.Deadline()
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return errors.Wrap(err, "set smtp deadline")
		}
		stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
		defer stop()

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			conn.Close()
			return errors.Wrap(err, "parse smtp address")
		}
		c, err := smtp.NewClient(conn, host)
		if err != nil {
			conn.Close()
			return errors.Wrap(err, "smtp handshake")
		}
		defer c.Close()

		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return errors.Wrap(err, "smtp starttls")
			}
		}
		if a != nil {
			if ok, _ := c.Extension("AUTH"); ok {
				if err := c.Auth(a); err != nil {
					return errors.Wrap(err, "smtp auth")
				}
			}
		}
		if err := c.Mail(from); err != nil {
			return errors.Wrap(err, "smtp mail from")
		}
		for _, rcpt := range to {
			if err := c.Rcpt(rcpt); err != nil {
				return errors.Wrapf(err, "smtp rcpt %s", rcpt)
			}
		}
		w, err := c.Data()
		if err != nil {
			return errors.Wrap(err, "smtp data")
		}
		if _, err := w.Write(msg); err != nil {
			return errors.Wrap(err, "smtp write")
		}
		if err := w.Close(); err != nil {
			return errors.Wrap(err, "smtp end data")
		}
		return c.Quit()
	}
}
