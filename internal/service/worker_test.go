package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

type stubApplier struct {
	calls int
	err   error
}

func (s *stubApplier) Apply(context.Context, int, int, string, map[string]any, *time.Time) error {
	s.calls++
	return s.err
}

func TestWorkerHandle(t *testing.T) {
	applier := &stubApplier{}
	w := service.NewWorker(applier)

	require.NoError(t, w.Handle(context.Background(), model.EventJob{ID: "1", CampaignID: 1, RecipientID: 2, Event: "open"}))
	assert.Equal(t, 1, applier.calls)

	require.NoError(t, w.Handle(context.Background(), model.EventJob{ID: "2", CampaignID: 1, Event: "open"}))
	assert.Equal(t, 1, applier.calls, "malformed jobs are dropped")

	applier.err = errors.New("db down")
	err := w.Handle(context.Background(), model.EventJob{ID: "3", CampaignID: 1, RecipientID: 2, Event: "open"})
	assert.ErrorContains(t, err, "db down")
}

func TestWorkerAppliesThroughRecorder(t *testing.T) {
	f := newFixture(t)
	id := f.dispatched(t, "w@example.com")
	rec := f.recipientByEmail(t, id, "w@example.com")

	w := service.NewWorker(f.recorder)
	require.NoError(t, w.Handle(context.Background(), model.EventJob{CampaignID: id, RecipientID: rec.ID, Event: "clicked"}))
	assert.Equal(t, 1, f.recipientByEmail(t, id, "w@example.com").Clicks)
}
