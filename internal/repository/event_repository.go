package repository

import (
	"context"
	"fmt"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type EventRepositoryInterface interface {
	Insert(ctx context.Context, e *model.CampaignEvent) error
	CountByType(ctx context.Context, campaignID int) (map[string]int, error)
}

type EventRepository struct {
	DB DBTX
}

func (r *EventRepository) Insert(ctx context.Context, e *model.CampaignEvent) error {
	query := `
        INSERT INTO campaign_events (campaign_id, recipient_id, event_type, metadata, occurred_at, created_at)
        VALUES ($1, $2, $3, $4::jsonb, $5, NOW())
        RETURNING id, created_at
    `
	var meta any
	if len(e.Metadata) > 0 {
		meta = string(e.Metadata)
	}
	err := r.DB.QueryRowContext(ctx, query, e.CampaignID, e.RecipientID, e.EventType, meta, e.OccurredAt).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", e.EventType, err)
	}
	return nil
}

func (r *EventRepository) CountByType(ctx context.Context, campaignID int) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM campaign_events WHERE campaign_id=$1 GROUP BY event_type`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for _, t := range model.DurableEventTypes {
		counts[t] = 0
	}
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}

var _ EventRepositoryInterface = (*EventRepository)(nil)
