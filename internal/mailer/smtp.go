package mailer

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
)

// SMTPMailer sends HTML mail through an SMTP relay.
type SMTPMailer struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

func NewSMTPMailer(host string, port int, from, user, pass, tlsMode string) *SMTPMailer {
	if tlsMode == "" {
		tlsMode = "auto"
	}
	return &SMTPMailer{Host: host, Port: port, From: from, User: user, Pass: pass, TLSMode: tlsMode}
}

func (s *SMTPMailer) message(to, subject, html string, opts SendOptions) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	if opts.Channel != "" {
		m.SetHeader("X-Mail-Channel", opts.Channel)
	}
	if id := opts.Metadata["campaign_id"]; id != "" {
		m.SetHeader("X-Campaign-ID", id)
	}
	if id := opts.Metadata["recipient_id"]; id != "" {
		m.SetHeader("X-Recipient-ID", id)
	}
	m.SetBody("text/html", html)
	return m
}

func (s *SMTPMailer) dialer() *mail.Dialer {
	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{ServerName: s.Host, InsecureSkipVerify: s.InsecureSkipVerify}
	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	return d
}

func (s *SMTPMailer) Send(ctx context.Context, to, subject, html string, opts SendOptions) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	log := logger.From(ctx).With(
		logger.Component("SMTPMailer"),
		logger.String("host", s.Host),
		logger.Email(to),
	)

	if err := s.dialer().DialAndSend(s.message(to, subject, html, opts)); err != nil {
		log.Warn("smtp send failed", logger.Err(err))
		return false, fmt.Errorf("smtp send: %w", err)
	}
	log.Debug("email sent")
	return true, nil
}

var _ Mailer = (*SMTPMailer)(nil)
