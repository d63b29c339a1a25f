package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/unclebandit/mailleopard-backend/internal/mailer"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository/memory"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type sentMail struct {
	To      string
	Subject string
	HTML    string
	Opts    mailer.SendOptions
}

// fakeMailer records every message. outcome decides the result per address;
// nil means success.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	outcome func(to string) (bool, error)
}

func (f *fakeMailer) Send(_ context.Context, to, subject, html string, opts mailer.SendOptions) (bool, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, HTML: html, Opts: opts})
	outcome := f.outcome
	f.mu.Unlock()
	if outcome == nil {
		return true, nil
	}
	return outcome(to)
}

func (f *fakeMailer) Sent() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	mailer   *fakeMailer
	svc      *service.CampaignService
	recorder *service.EventRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), mailer: &fakeMailer{}}
	now := func() time.Time { return fixedNow }
	f.svc = &service.CampaignService{
		CampaignRepo:  f.store.Campaigns(),
		TemplateRepo:  f.store.Templates(),
		RecipientRepo: f.store.Recipients(),
		EventRepo:     f.store.Events(),
		ActivityRepo:  f.store.Activity(),
		Resolver: &service.AudienceResolver{
			Subscribers: f.store.Subscribers(),
			Customers:   f.store.Customers(),
		},
		Synchronizer: &service.RecipientSynchronizer{
			Recipients: f.store.Recipients(),
		},
		Mailer:        f.mailer,
		Renderer:      mailer.Layout{},
		PublicBaseURL: "https://mail.example.com/",
		Now:           now,
	}
	f.recorder = &service.EventRecorder{Store: f.store, Now: now}
	return f
}

func filters(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (f *fixture) manualCampaign(t *testing.T, emails ...any) int {
	t.Helper()
	return f.store.AddCampaign(model.Campaign{
		Name:            "Spring launch",
		AudienceType:    model.AudienceManual,
		AudienceFilters: filters(t, map[string]any{"manual_emails": emails}),
		Subject:         "Hello {{first_name}}",
		ContentHTML:     "<p>Hi {{full_name}}</p><a href=\"{{unsubscribe_url}}\">unsubscribe</a>",
	})
}

func (f *fixture) recipientByEmail(t *testing.T, campaignID int, email string) model.CampaignRecipient {
	t.Helper()
	for _, r := range f.store.CampaignRecipients(campaignID) {
		if r.Email == email {
			return r
		}
	}
	t.Fatalf("no recipient %s in campaign %d", email, campaignID)
	return model.CampaignRecipient{}
}

func (f *fixture) metrics(t *testing.T, campaignID int) model.MetricsSummary {
	t.Helper()
	c, ok := f.store.Campaign(campaignID)
	if !ok {
		t.Fatalf("campaign %d missing", campaignID)
	}
	var m model.MetricsSummary
	if err := json.Unmarshal(c.MetricsSummary, &m); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	return m
}
