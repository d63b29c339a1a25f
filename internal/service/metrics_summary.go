package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// ComputeMetrics recomputes a campaign's summary from the ledger and the event archive.
func ComputeMetrics(ctx context.Context, recipients repository.RecipientRepositoryInterface, events repository.EventRepositoryInterface, campaignID int, now time.Time) (model.MetricsSummary, error) {
	stats, err := recipients.Stats(ctx, campaignID)
	if err != nil {
		return model.MetricsSummary{}, err
	}
	counts, err := events.CountByType(ctx, campaignID)
	if err != nil {
		return model.MetricsSummary{}, fmt.Errorf("count events for campaign %d: %w", campaignID, err)
	}
	return model.MetricsSummary{RecipientStats: stats, Events: counts, ComputedAt: now.UTC()}, nil
}

func encodeMetrics(m model.MetricsSummary) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metrics summary: %w", err)
	}
	return b, nil
}
