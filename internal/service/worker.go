package service

import (
	"context"
	"fmt"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// Worker applies queued delivery events.
type Worker struct {
	Recorder EventApplier
}

func NewWorker(recorder EventApplier) *Worker {
	return &Worker{Recorder: recorder}
}

// Handle applies one job. A returned error means the job may be retried.
func (w *Worker) Handle(ctx context.Context, job model.EventJob) error {
	if job.CampaignID <= 0 || job.RecipientID <= 0 || job.Event == "" {
		logger.From(ctx).Warn("dropping malformed event job", logger.JobID(job.ID))
		return nil
	}
	if err := w.Recorder.Apply(ctx, job.CampaignID, job.RecipientID, job.Event, job.Context, job.OccurredAt); err != nil {
		return fmt.Errorf("apply event job %s: %w", job.ID, err)
	}
	return nil
}
