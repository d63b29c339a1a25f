package mailer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailleopard-backend/internal/config"
)

func TestLayoutWrapEscapesTitleOnly(t *testing.T) {
	out, err := Layout{}.Wrap("Hi <you>", "<p>Hello</p>")
	require.NoError(t, err)

	assert.True(t, IsFullDocument(out))
	assert.Contains(t, out, "<title>Hi &lt;you&gt;</title>")
	assert.Contains(t, out, "<p>Hello</p>")
}

func TestIsFullDocument(t *testing.T) {
	assert.True(t, IsFullDocument("<!doctype html><HTML lang=it><body>x</body></HTML>"))
	assert.False(t, IsFullDocument("<p>just a fragment</p>"))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Defaults()
	m, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.IsType(t, LogMailer{}, m)

	cfg.Mailer.Driver = "smtp"
	_, err = FromConfig(cfg)
	assert.Error(t, err, "smtp without host must be rejected")

	cfg.Mailer.Host = "smtp.example.com"
	cfg.Mailer.From = "news@example.com"
	m, err = FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "auto", m.(*SMTPMailer).TLSMode)

	cfg.Mailer.Driver = "carrier-pigeon"
	_, err = FromConfig(cfg)
	assert.Error(t, err)
}

func TestSMTPMessageHeaders(t *testing.T) {
	s := NewSMTPMailer("smtp.example.com", 587, "news@example.com", "", "", "starttls")
	m := s.message("a@x.com", "Hello", "<p>x</p>", SendOptions{
		Channel:  "campaign",
		Metadata: map[string]string{"campaign_id": "4", "recipient_id": "9"},
	})

	assert.Equal(t, []string{"a@x.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"4"}, m.GetHeader("X-Campaign-ID"))
	assert.Equal(t, []string{"9"}, m.GetHeader("X-Recipient-ID"))
}

func TestSMTPSendHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := NewSMTPMailer("127.0.0.1", 1, "a@x.com", "", "", "none").Send(ctx, "b@x.com", "s", "h", SendOptions{})
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "canceled"))
}
