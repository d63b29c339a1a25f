package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Template, error)
}

type TemplateRepository struct {
	DB DBTX
}

// GetByID returns nil, nil when the template does not exist.
func (r *TemplateRepository) GetByID(ctx context.Context, id int) (*model.Template, error) {
	var t model.Template
	err := r.DB.QueryRowContext(ctx, `SELECT id, name, content_html FROM email_templates WHERE id=$1`, id).
		Scan(&t.ID, &t.Name, &t.ContentHTML)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
