package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

// dispatched sends a manual campaign to emails and returns its id.
func (f *fixture) dispatched(t *testing.T, emails ...any) int {
	t.Helper()
	id := f.manualCampaign(t, emails...)
	_, err := f.svc.Dispatch(context.Background(), id, false, admin)
	require.NoError(t, err)
	return id
}

func TestApplyBounce(t *testing.T) {
	f := newFixture(t)
	id := f.dispatched(t, "b@example.com")
	rec := f.recipientByEmail(t, id, "b@example.com")

	err := f.recorder.Apply(context.Background(), id, rec.ID, "email.bounced",
		map[string]any{"diagnostic": "550 no such user", "ip": "10.1.1.1", "secret": "x"}, nil)
	require.NoError(t, err)

	rec = f.recipientByEmail(t, id, "b@example.com")
	assert.Equal(t, model.RecipientStatusFailed, rec.Status)
	require.NotNil(t, rec.LastError)
	assert.Equal(t, "550 no such user", *rec.LastError)

	sub, _ := f.store.SubscriberByEmail("b@example.com")
	assert.Equal(t, model.SubscriberStatusBounced, sub.Status)

	events := f.store.CampaignEvents(id)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventBounce, events[0].EventType)
	assert.True(t, events[0].OccurredAt.Equal(fixedNow))
	var meta map[string]any
	require.NoError(t, json.Unmarshal(events[0].Metadata, &meta))
	assert.Equal(t, map[string]any{"diagnostic": "550 no such user", "ip": "10.1.1.1"}, meta)

	m := f.metrics(t, id)
	assert.Equal(t, 1, m.Failed)
	assert.Equal(t, 0, m.Sent)
	assert.Equal(t, 1, m.Events[model.EventBounce])
}

func TestApplyOpenAndClick(t *testing.T) {
	f := newFixture(t)
	id := f.dispatched(t, "o@example.com", "p@example.com")
	o := f.recipientByEmail(t, id, "o@example.com")
	early := fixedNow.Add(-time.Hour)

	require.NoError(t, f.recorder.Apply(context.Background(), id, o.ID, "opened", nil, nil))
	require.NoError(t, f.recorder.Apply(context.Background(), id, o.ID, "email.opened", nil, &early))
	require.NoError(t, f.recorder.Apply(context.Background(), id, o.ID, "click", map[string]any{"link": "https://x.test"}, nil))

	o = f.recipientByEmail(t, id, "o@example.com")
	assert.Equal(t, 2, o.Opens)
	assert.Equal(t, 1, o.Clicks)
	require.NotNil(t, o.LastOpenAt)
	assert.True(t, o.LastOpenAt.Equal(fixedNow), "an older event never moves last_open_at back")

	sub, _ := f.store.SubscriberByEmail("o@example.com")
	require.NotNil(t, sub.LastEngagementAt)
	assert.True(t, sub.LastEngagementAt.Equal(fixedNow))

	m := f.metrics(t, id)
	assert.Equal(t, 2, m.Opens)
	assert.Equal(t, 1, m.UniqueOpens)
	assert.Equal(t, 1, m.UniqueClicks)
	assert.Equal(t, 2, m.Events[model.EventOpen])
	assert.Equal(t, 1, m.Events[model.EventClick])
}

func TestApplyUnsubscribeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	list := f.store.AddList("News")
	subID := f.store.AddSubscriber(model.Subscriber{Email: "u@example.com"})
	f.store.Subscribe(list, subID, model.SubscriberStatusActive)
	id := f.dispatched(t, "u@example.com")
	rec := f.recipientByEmail(t, id, "u@example.com")
	require.NotNil(t, rec.UnsubscribeToken)

	first := fixedNow.Add(-time.Minute)
	require.NoError(t, f.recorder.Apply(context.Background(), id, rec.ID, "unsubscribed", nil, &first))
	require.NoError(t, f.recorder.Apply(context.Background(), id, rec.ID, "unsubscribe", nil, nil))

	rec = f.recipientByEmail(t, id, "u@example.com")
	assert.Nil(t, rec.UnsubscribeToken)
	require.NotNil(t, rec.LastError)
	assert.Equal(t, "Recipient unsubscribed.", *rec.LastError)
	assert.Equal(t, model.RecipientStatusSent, rec.Status, "unsubscribe does not touch delivery status")

	sub, _ := f.store.Subscriber(subID)
	assert.Equal(t, model.SubscriberStatusUnsubscribed, sub.Status)
	require.NotNil(t, sub.UnsubscribedAt)
	assert.True(t, sub.UnsubscribedAt.Equal(first), "first unsubscribe time is kept")

	subs := f.store.Subscriptions(subID)
	require.Len(t, subs, 1)
	assert.Equal(t, model.SubscriberStatusUnsubscribed, subs[0].Status)

	assert.Equal(t, 2, f.metrics(t, id).Events[model.EventUnsubscribe])
}

func TestApplyDeliveredIsNotArchived(t *testing.T) {
	f := newFixture(t)
	f.mailer.outcome = func(string) (bool, error) { return false, nil }
	id := f.dispatched(t, "late@example.com")
	rec := f.recipientByEmail(t, id, "late@example.com")
	require.Equal(t, model.RecipientStatusFailed, rec.Status)

	require.NoError(t, f.recorder.Apply(context.Background(), id, rec.ID, "email.sent", nil, nil))

	rec = f.recipientByEmail(t, id, "late@example.com")
	assert.Equal(t, model.RecipientStatusSent, rec.Status)
	require.NotNil(t, rec.SentAt)
	assert.Empty(t, f.store.CampaignEvents(id))
	assert.Equal(t, 1, f.metrics(t, id).Sent)
}

func TestApplyIgnoresForeignRecipient(t *testing.T) {
	f := newFixture(t)
	a := f.dispatched(t, "a@example.com")
	b := f.dispatched(t, "b@example.com")
	recA := f.recipientByEmail(t, a, "a@example.com")
	before := f.metrics(t, b)

	require.NoError(t, f.recorder.Apply(context.Background(), b, recA.ID, "bounce", nil, nil))
	require.NoError(t, f.recorder.Apply(context.Background(), b, 999999, "open", nil, nil))

	assert.Equal(t, model.RecipientStatusSent, f.recipientByEmail(t, a, "a@example.com").Status)
	assert.Empty(t, f.store.CampaignEvents(b))
	assert.Equal(t, before, f.metrics(t, b))
}

func TestApplyUnknownEventOnlyRecomputes(t *testing.T) {
	f := newFixture(t)
	id := f.dispatched(t, "k@example.com")
	rec := f.recipientByEmail(t, id, "k@example.com")

	require.NoError(t, f.recorder.Apply(context.Background(), id, rec.ID, "Deferred", map[string]any{"reason": "later"}, nil))

	after := f.recipientByEmail(t, id, "k@example.com")
	assert.Equal(t, rec.Status, after.Status)
	assert.Equal(t, rec.LastError, after.LastError)
	assert.Empty(t, f.store.CampaignEvents(id))
}

func TestApplyFindsSubscriberByEmail(t *testing.T) {
	f := newFixture(t)
	subID := f.store.AddSubscriber(model.Subscriber{Email: "orphan@example.com"})
	id := f.manualCampaign(t, "orphan@example.com")
	recID, err := f.store.Recipients().Upsert(context.Background(), &model.CampaignRecipient{
		CampaignID: id, Email: "orphan@example.com", Status: model.RecipientStatusSent,
	})
	require.NoError(t, err)

	require.NoError(t, f.recorder.Apply(context.Background(), id, recID, "complaint", nil, nil))

	sub, _ := f.store.Subscriber(subID)
	assert.Equal(t, model.SubscriberStatusUnsubscribed, sub.Status)
	assert.NotNil(t, sub.UnsubscribedAt)
}

func TestApplyComplaintUnsubscribes(t *testing.T) {
	f := newFixture(t)
	list := f.store.AddList("Promos")
	subID := f.store.AddSubscriber(model.Subscriber{Email: "c@example.com"})
	f.store.Subscribe(list, subID, model.SubscriberStatusActive)
	id := f.dispatched(t, "c@example.com")
	rec := f.recipientByEmail(t, id, "c@example.com")
	require.NotNil(t, rec.UnsubscribeToken)

	require.NoError(t, f.recorder.Apply(context.Background(), id, rec.ID, "complaint", map[string]any{"reason": "spam"}, nil))

	rec = f.recipientByEmail(t, id, "c@example.com")
	assert.Nil(t, rec.UnsubscribeToken)
	require.NotNil(t, rec.LastError)
	assert.Equal(t, "spam", *rec.LastError)
	assert.Equal(t, model.RecipientStatusSent, rec.Status, "complaint does not touch delivery status")

	sub, _ := f.store.Subscriber(subID)
	assert.Equal(t, model.SubscriberStatusUnsubscribed, sub.Status)
	require.NotNil(t, sub.UnsubscribedAt)
	assert.True(t, sub.UnsubscribedAt.Equal(fixedNow))

	subs := f.store.Subscriptions(subID)
	require.Len(t, subs, 1)
	assert.Equal(t, model.SubscriberStatusUnsubscribed, subs[0].Status)

	m := f.metrics(t, id)
	assert.Equal(t, 1, m.Sent)
	assert.Equal(t, 1, m.Events[model.EventComplaint])
}

func TestMetricsDoNotDrift(t *testing.T) {
	f := newFixture(t)
	id := f.dispatched(t, "a@example.com", "b@example.com", "c@example.com")
	ids := map[string]int{}
	for _, r := range f.store.CampaignRecipients(id) {
		ids[r.Email] = r.ID
	}

	steps := []struct {
		email string
		event string
	}{
		{"a@example.com", "open"}, {"a@example.com", "open"}, {"b@example.com", "click"},
		{"c@example.com", "bounce"}, {"a@example.com", "unsubscribe"}, {"b@example.com", "delivered"},
		{"b@example.com", "spam"},
	}
	for _, s := range steps {
		require.NoError(t, f.recorder.Apply(context.Background(), id, ids[s.email], s.event, nil, nil))
	}

	fresh, err := service.ComputeMetrics(context.Background(), f.store.Recipients(), f.store.Events(), id, fixedNow)
	require.NoError(t, err)
	stored := f.metrics(t, id)
	assert.Equal(t, fresh.RecipientStats, stored.RecipientStats)
	assert.Equal(t, fresh.Events, stored.Events)
	assert.Equal(t, 2, stored.Sent)
	assert.Equal(t, 1, stored.Failed)
}

// failingEvents lets everything through except the archive insert.
type failingEvents struct {
	repository.EventRepositoryInterface
}

func (failingEvents) Insert(context.Context, *model.CampaignEvent) error {
	return errors.New("disk full")
}

type sabotagedTx struct {
	inner repository.TxRunner
}

func (s sabotagedTx) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return s.inner.WithTx(ctx, func(repos repository.Repositories) error {
		repos.Events = failingEvents{repos.Events}
		return fn(repos)
	})
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	id := f.dispatched(t, "r@example.com")
	rec := f.recipientByEmail(t, id, "r@example.com")
	before := f.metrics(t, id)

	recorder := &service.EventRecorder{Store: sabotagedTx{inner: f.store}, Now: func() time.Time { return fixedNow }}
	err := recorder.Apply(context.Background(), id, rec.ID, "bounce", map[string]any{"reason": "gone"}, nil)
	require.Error(t, err)

	after := f.recipientByEmail(t, id, "r@example.com")
	assert.Equal(t, model.RecipientStatusSent, after.Status)
	assert.Nil(t, after.LastError)
	sub, _ := f.store.SubscriberByEmail("r@example.com")
	assert.Equal(t, model.SubscriberStatusActive, sub.Status)
	assert.Equal(t, before, f.metrics(t, id))
}

func TestApplyWithCancelledContextLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	id := f.dispatched(t, "x@example.com")
	rec := f.recipientByEmail(t, id, "x@example.com")
	before := f.metrics(t, id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.recorder.Apply(ctx, id, rec.ID, "open", nil, nil)
	require.ErrorIs(t, err, context.Canceled)

	after := f.recipientByEmail(t, id, "x@example.com")
	assert.Equal(t, 0, after.Opens)
	assert.Nil(t, after.LastOpenAt)
	assert.Empty(t, f.store.CampaignEvents(id))
	assert.Equal(t, before, f.metrics(t, id))
}
