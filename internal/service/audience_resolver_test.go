package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

func TestResolveManualNormalizesAndDedupes(t *testing.T) {
	f := newFixture(t)
	existing := f.store.AddSubscriber(model.Subscriber{Email: "old@example.com", FirstName: "Olga", Status: model.SubscriberStatusUnsubscribed})

	id := f.manualCampaign(t,
		"  Ann@Example.com ",
		map[string]any{"email": "ann@example.com", "first_name": "Second"},
		"not-an-email",
		map[string]any{"email": "old@example.com"},
		map[string]any{"email": "new@example.com", "first_name": "Ned", "status": "Bounced"},
	)
	campaign, err := f.svc.CampaignRepo.GetByID(context.Background(), id)
	require.NoError(t, err)

	candidates, err := f.svc.Resolver.Resolve(context.Background(), campaign)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, "ann@example.com", candidates[0].Email)
	assert.Empty(t, candidates[0].FirstName, "first occurrence wins")
	assert.True(t, candidates[0].Sendable)

	assert.Equal(t, "old@example.com", candidates[1].Email)
	assert.Equal(t, "Olga", candidates[1].FirstName, "falls back to subscriber name")
	assert.Equal(t, existing, *candidates[1].SubscriberID)
	assert.False(t, candidates[1].Sendable)
	assert.Contains(t, candidates[1].SkipReason, "unsubscribed")

	assert.False(t, candidates[2].Sendable)
	created, ok := f.store.SubscriberByEmail("new@example.com")
	require.True(t, ok)
	assert.Equal(t, model.SubscriberStatusBounced, created.Status)
	assert.Equal(t, model.SubscriberSourceImported, created.Source)
	assert.Equal(t, created.ID, *candidates[2].SubscriberID)
}

func TestResolveListUsesActiveMemberships(t *testing.T) {
	f := newFixture(t)
	list := f.store.AddList("Newsletter")
	other := f.store.AddList("VIP")
	carol := f.store.AddSubscriber(model.Subscriber{Email: "carol@example.com", FirstName: "Carol"})
	dave := f.store.AddSubscriber(model.Subscriber{Email: "dave@example.com"})
	erin := f.store.AddSubscriber(model.Subscriber{Email: "erin@example.com", Status: model.SubscriberStatusBounced})
	f.store.Subscribe(list, carol, model.SubscriberStatusActive)
	f.store.Subscribe(list, dave, model.SubscriberStatusUnsubscribed)
	f.store.Subscribe(other, erin, model.SubscriberStatusActive)
	f.store.Subscribe(other, carol, model.SubscriberStatusActive)

	id := f.store.AddCampaign(model.Campaign{
		AudienceType:    model.AudienceList,
		AudienceFilters: filters(t, map[string]any{"list_ids": []any{list, "0", other}}),
	})
	campaign, err := f.svc.CampaignRepo.GetByID(context.Background(), id)
	require.NoError(t, err)

	candidates, err := f.svc.Resolver.Resolve(context.Background(), campaign)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "carol@example.com", candidates[0].Email)
	assert.Equal(t, "Carol", candidates[0].FirstName)
	assert.True(t, candidates[0].Sendable)
	assert.Equal(t, "erin@example.com", candidates[1].Email)
	assert.False(t, candidates[1].Sendable, "active membership but bounced subscriber")
}

func TestResolveAllClientsSkipsBlankEmails(t *testing.T) {
	f := newFixture(t)
	f.store.AddCustomer(model.Customer{Email: "Zed@Example.com", FirstName: "Zed"})
	f.store.AddCustomer(model.Customer{Email: "   "})
	f.store.AddCustomer(model.Customer{Email: "zed@example.com", FirstName: "Dup"})

	id := f.store.AddCampaign(model.Campaign{AudienceType: model.AudienceAllClients})
	campaign, err := f.svc.CampaignRepo.GetByID(context.Background(), id)
	require.NoError(t, err)

	candidates, err := f.svc.Resolver.Resolve(context.Background(), campaign)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "zed@example.com", candidates[0].Email)
	assert.Equal(t, "Zed", candidates[0].FirstName)

	_, ok := f.store.SubscriberByEmail("zed@example.com")
	assert.True(t, ok, "customer becomes a subscriber")
}

func TestResolveRejectsMalformedFilters(t *testing.T) {
	f := newFixture(t)
	id := f.store.AddCampaign(model.Campaign{AudienceType: model.AudienceManual, AudienceFilters: []byte(`[1,2]`)})
	campaign, err := f.svc.CampaignRepo.GetByID(context.Background(), id)
	require.NoError(t, err)

	_, err = f.svc.Resolver.Resolve(context.Background(), campaign)
	var invalid *appErrors.ErrInvalidAudienceFilters
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, id, invalid.CampaignID)
}

func TestValidEmail(t *testing.T) {
	for email, want := range map[string]bool{
		"a@example.com":             true,
		"first.last@sub.example.io": true,
		"":                          false,
		"no-at-sign":                false,
		"a@localhost":               false,
		"Name <a@example.com>":      false,
		"a b@example.com":           false,
	} {
		assert.Equal(t, want, service.ValidEmail(email), email)
	}
}
