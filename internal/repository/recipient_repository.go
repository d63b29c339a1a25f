package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type RecipientRepositoryInterface interface {
	// Upsert inserts or refreshes the (campaign_id, email) row and returns its id.
	// A nil UnsubscribeToken keeps whatever token the row already has.
	Upsert(ctx context.Context, rec *model.CampaignRecipient) (int, error)
	GetByIDs(ctx context.Context, ids []int) ([]*model.CampaignRecipient, error)
	GetByID(ctx context.Context, id int) (*model.CampaignRecipient, error)
	GetByUnsubscribeToken(ctx context.Context, token string) (*model.CampaignRecipient, error)

	MarkSent(ctx context.Context, id int, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int, lastError string) error
	MarkDelivered(ctx context.Context, id int, at time.Time) error
	RecordOpen(ctx context.Context, id int, at time.Time) error
	RecordClick(ctx context.Context, id int, at time.Time) error
	ConsumeUnsubscribeToken(ctx context.Context, id int, reason string) error

	Stats(ctx context.Context, campaignID int) (model.RecipientStats, error)
}

type RecipientRepository struct {
	DB DBTX
	// ForUpdate locks rows read by GetByID. Only meaningful inside a transaction.
	ForUpdate bool
}

const recipientColumns = `id, campaign_id, subscriber_id, email, first_name, last_name, status, opens, clicks,
        last_open_at, last_click_at, sent_at, last_error, unsubscribe_token, created_at, updated_at`

func scanRecipient(row rowScanner) (*model.CampaignRecipient, error) {
	var r model.CampaignRecipient
	err := row.Scan(
		&r.ID, &r.CampaignID, &r.SubscriberID, &r.Email, &r.FirstName, &r.LastName, &r.Status,
		&r.Opens, &r.Clicks, &r.LastOpenAt, &r.LastClickAt, &r.SentAt, &r.LastError,
		&r.UnsubscribeToken, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *RecipientRepository) Upsert(ctx context.Context, rec *model.CampaignRecipient) (int, error) {
	query := `
        INSERT INTO campaign_recipients
            (campaign_id, subscriber_id, email, first_name, last_name, status, last_error, unsubscribe_token, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
        ON CONFLICT (campaign_id, email) DO UPDATE SET
            subscriber_id = EXCLUDED.subscriber_id,
            first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            status = EXCLUDED.status,
            last_error = EXCLUDED.last_error,
            unsubscribe_token = COALESCE(EXCLUDED.unsubscribe_token, campaign_recipients.unsubscribe_token),
            updated_at = NOW()
        RETURNING id
    `
	var id int
	err := r.DB.QueryRowContext(ctx, query,
		rec.CampaignID, rec.SubscriberID, rec.Email, rec.FirstName, rec.LastName,
		rec.Status, rec.LastError, rec.UnsubscribeToken,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert recipient %s: %w", rec.Email, err)
	}
	rec.ID = id
	return id, nil
}

func (r *RecipientRepository) GetByIDs(ctx context.Context, ids []int) ([]*model.CampaignRecipient, error) {
	recipients := []*model.CampaignRecipient{}
	if len(ids) == 0 {
		return recipients, nil
	}
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients WHERE id = ANY($1) ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(toInt64s(ids)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func (r *RecipientRepository) getOne(ctx context.Context, where string, arg any) (*model.CampaignRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients WHERE ` + where
	if r.ForUpdate {
		query += ` FOR UPDATE`
	}
	rec, err := scanRecipient(r.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// GetByID returns nil, nil when not found.
func (r *RecipientRepository) GetByID(ctx context.Context, id int) (*model.CampaignRecipient, error) {
	return r.getOne(ctx, `id=$1`, id)
}

func (r *RecipientRepository) GetByUnsubscribeToken(ctx context.Context, token string) (*model.CampaignRecipient, error) {
	if token == "" {
		return nil, nil
	}
	return r.getOne(ctx, `unsubscribe_token=$1`, token)
}

func (r *RecipientRepository) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *RecipientRepository) MarkSent(ctx context.Context, id int, sentAt time.Time) error {
	return r.exec(ctx, "mark recipient sent",
		`UPDATE campaign_recipients SET status='sent', sent_at=$1, last_error=NULL, updated_at=NOW() WHERE id=$2`,
		sentAt, id)
}

func (r *RecipientRepository) MarkFailed(ctx context.Context, id int, lastError string) error {
	return r.exec(ctx, "mark recipient failed",
		`UPDATE campaign_recipients SET status='failed', last_error=$1, updated_at=NOW() WHERE id=$2`,
		nullIfEmpty(lastError), id)
}

func (r *RecipientRepository) MarkDelivered(ctx context.Context, id int, at time.Time) error {
	return r.exec(ctx, "mark recipient delivered", `
        UPDATE campaign_recipients
        SET status='sent', sent_at=COALESCE(sent_at, $1), updated_at=NOW()
        WHERE id=$2 AND status <> 'sent'`, at, id)
}

func (r *RecipientRepository) RecordOpen(ctx context.Context, id int, at time.Time) error {
	return r.exec(ctx, "record open", `
        UPDATE campaign_recipients
        SET opens = opens + 1, last_open_at = GREATEST(COALESCE(last_open_at, $1), $1), updated_at=NOW()
        WHERE id=$2`, at, id)
}

func (r *RecipientRepository) RecordClick(ctx context.Context, id int, at time.Time) error {
	return r.exec(ctx, "record click", `
        UPDATE campaign_recipients
        SET clicks = clicks + 1, last_click_at = GREATEST(COALESCE(last_click_at, $1), $1), updated_at=NOW()
        WHERE id=$2`, at, id)
}

func (r *RecipientRepository) ConsumeUnsubscribeToken(ctx context.Context, id int, reason string) error {
	return r.exec(ctx, "consume unsubscribe token",
		`UPDATE campaign_recipients SET unsubscribe_token=NULL, last_error=$1, updated_at=NOW() WHERE id=$2`,
		nullIfEmpty(reason), id)
}

func (r *RecipientRepository) Stats(ctx context.Context, campaignID int) (model.RecipientStats, error) {
	var s model.RecipientStats
	query := `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE status='pending'),
            COUNT(*) FILTER (WHERE status='sent'),
            COUNT(*) FILTER (WHERE status='failed'),
            COUNT(*) FILTER (WHERE status='skipped'),
            COALESCE(SUM(opens), 0),
            COUNT(*) FILTER (WHERE opens > 0),
            COALESCE(SUM(clicks), 0),
            COUNT(*) FILTER (WHERE clicks > 0)
        FROM campaign_recipients
        WHERE campaign_id=$1
    `
	err := r.DB.QueryRowContext(ctx, query, campaignID).Scan(
		&s.Total, &s.Pending, &s.Sent, &s.Failed, &s.Skipped,
		&s.Opens, &s.UniqueOpens, &s.Clicks, &s.UniqueClicks,
	)
	if err != nil {
		return s, fmt.Errorf("recipient stats for campaign %d: %w", campaignID, err)
	}
	return s, nil
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
