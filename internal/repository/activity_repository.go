package repository

import (
	"context"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type ActivityRepositoryInterface interface {
	Log(ctx context.Context, entry *model.ActivityEntry) error
}

type ActivityRepository struct {
	DB DBTX
}

func (r *ActivityRepository) Log(ctx context.Context, e *model.ActivityEntry) error {
	query := `
        INSERT INTO activity_log (actor_id, actor_name, action, entity_id, details, created_at)
        VALUES ($1, $2, $3, $4, $5::jsonb, NOW())
        RETURNING id, created_at
    `
	var details any
	if len(e.Details) > 0 {
		details = string(e.Details)
	}
	return r.DB.QueryRowContext(ctx, query, e.ActorID, e.ActorName, e.Action, e.EntityID, details).
		Scan(&e.ID, &e.CreatedAt)
}

var _ ActivityRepositoryInterface = (*ActivityRepository)(nil)
