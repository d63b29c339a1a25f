package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	ListCampaigns(ctx context.Context, offset, limit int, audienceType, status string) ([]*model.Campaign, int, error)
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	// MarkSending moves a draft, scheduled or failed campaign to sending.
	// It reports false when the campaign was not in one of those states.
	MarkSending(ctx context.Context, campaignID int) (bool, error)

	// FinishDispatch writes the terminal fields of a dispatch run in one statement.
	FinishDispatch(ctx context.Context, campaignID int, status string, lastError *string, sentAt *time.Time, metrics []byte) error
	UpdateMetricsSummary(ctx context.Context, campaignID int, metrics []byte) error
}

type CampaignRepository struct {
	DB DBTX
}

const campaignColumns = `id, name, audience_type, audience_filters, subject, content_html, template_id,
        status, last_error, sent_at, metrics_summary, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var filters, metrics []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.AudienceType, &filters, &c.Subject, &c.ContentHTML, &c.TemplateID,
		&c.Status, &c.LastError, &c.SentAt, &metrics, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.AudienceFilters = filters
	c.MetricsSummary = metrics
	return &c, nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("get campaign %d: %w", id, err)
	}
	return c, nil
}

func (r *CampaignRepository) MarkSending(ctx context.Context, campaignID int) (bool, error) {
	query := `
        UPDATE campaigns
        SET status='sending', updated_at=NOW()
        WHERE id=$1 AND status IN ('draft', 'scheduled', 'failed')
    `
	res, err := r.DB.ExecContext(ctx, query, campaignID)
	if err != nil {
		return false, fmt.Errorf("mark campaign %d sending: %w", campaignID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) FinishDispatch(ctx context.Context, campaignID int, status string, lastError *string, sentAt *time.Time, metrics []byte) error {
	query := `
        UPDATE campaigns
        SET status=$1, last_error=$2, sent_at=COALESCE($3, sent_at), metrics_summary=$4::jsonb, updated_at=NOW()
        WHERE id=$5
    `
	_, err := r.DB.ExecContext(ctx, query, status, lastError, sentAt, string(metrics), campaignID)
	return err
}

func (r *CampaignRepository) UpdateMetricsSummary(ctx context.Context, campaignID int, metrics []byte) error {
	query := `UPDATE campaigns SET metrics_summary=$1::jsonb, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, string(metrics), campaignID)
	return err
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, audienceType, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	cond := ` WHERE 1=1`
	args := []any{}
	argPos := 1

	if audienceType != "" {
		cond += fmt.Sprintf(" AND audience_type=$%d", argPos)
		args = append(args, audienceType)
		argPos++
	}
	if status != "" {
		cond += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + cond +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, total, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
