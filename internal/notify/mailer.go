// Package notify delivers e-mail notifications and remembers which
// one-off reminders were already sent.
package notify

import (
	"context"
	"errors"

	"gopkg.in/gomail.v2"
)

// ErrDisabled is returned by Send when no SMTP host is configured.
var ErrDisabled = errors.New("notify: smtp not configured")

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends HTML e-mail through an SMTP relay.
type Mailer struct {
	cfg  SMTPConfig
	send func(*gomail.Message) error
}

// NewMailer returns a mailer for cfg.  Port defaults to 587.
func NewMailer(cfg SMTPConfig) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	m := &Mailer{cfg: cfg}
	if cfg.Host != "" {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		m.send = func(msg *gomail.Message) error { return d.DialAndSend(msg) }
	}
	return m
}

// Enabled reports whether an SMTP host is configured.
func (m *Mailer) Enabled() bool { return m != nil && m.send != nil }

func (m *Mailer) message(to, subject, html string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)
	return msg
}

// Send delivers one message.  gomail has no context support, so ctx is
// only checked before dialing.
func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.send(m.message(to, subject, html))
}
