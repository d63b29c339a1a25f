package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
)

// SendOptions carries transport hints. Transports may ignore them.
type SendOptions struct {
	Channel  string
	Metadata map[string]string
}

// Mailer is the mail transport. Delivery succeeded only when it returns (true, nil).
type Mailer interface {
	Send(ctx context.Context, to, subject, html string, opts SendOptions) (bool, error)
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, to, subject, html string, opts SendOptions) (bool, error)

func (f MailerFunc) Send(ctx context.Context, to, subject, html string, opts SendOptions) (bool, error) {
	return f(ctx, to, subject, html, opts)
}

// LogMailer accepts every message and only logs it. Used with MAILER_DRIVER=log.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, to, subject, _ string, opts SendOptions) (bool, error) {
	logger.From(ctx).Info("mail accepted by log transport",
		logger.Email(to),
		logger.String("subject", subject),
		logger.String("channel", opts.Channel),
	)
	return true, nil
}

// FromConfig picks the transport named by cfg.Mailer.Driver.
func FromConfig(cfg config.Config) (Mailer, error) {
	switch strings.ToLower(cfg.Mailer.Driver) {
	case "", "log":
		return LogMailer{}, nil
	case "smtp":
		if cfg.Mailer.Host == "" || cfg.Mailer.From == "" {
			return nil, fmt.Errorf("smtp mailer needs SMTP_HOST and SMTP_FROM")
		}
		return NewSMTPMailer(cfg.Mailer.Host, cfg.Mailer.Port, cfg.Mailer.From, cfg.Mailer.Username, cfg.Mailer.Password, cfg.Mailer.TLSMode), nil
	default:
		return nil, fmt.Errorf("unknown mailer driver %q", cfg.Mailer.Driver)
	}
}
