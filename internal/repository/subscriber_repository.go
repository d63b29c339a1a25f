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

type SubscriberRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Subscriber, error)
	GetByEmail(ctx context.Context, email string) (*model.Subscriber, error)

	// Create inserts s, or loads the existing row into s when the email is already registered.
	Create(ctx context.Context, s *model.Subscriber) error

	// ListActiveMembers returns active memberships across listIDs, ordered by list then subscription.
	ListActiveMembers(ctx context.Context, listIDs []int) ([]model.ListMember, error)

	MarkBounced(ctx context.Context, id int) error
	TouchEngagement(ctx context.Context, id int, at time.Time) error

	// Unsubscribe marks the subscriber and all of its list memberships unsubscribed.
	// unsubscribed_at keeps its first value.
	Unsubscribe(ctx context.Context, id int, at time.Time) error
}

type SubscriberRepository struct {
	DB DBTX
}

const subscriberColumns = `id, email, first_name, last_name, status, source, last_engagement_at, unsubscribed_at, created_at, updated_at`

func scanSubscriber(row rowScanner) (*model.Subscriber, error) {
	var s model.Subscriber
	err := row.Scan(&s.ID, &s.Email, &s.FirstName, &s.LastName, &s.Status, &s.Source,
		&s.LastEngagementAt, &s.UnsubscribedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriberRepository) getOne(ctx context.Context, where string, arg any) (*model.Subscriber, error) {
	s, err := scanSubscriber(r.DB.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// GetByID returns nil, nil when not found.
func (r *SubscriberRepository) GetByID(ctx context.Context, id int) (*model.Subscriber, error) {
	return r.getOne(ctx, `id=$1`, id)
}

// GetByEmail expects an already normalized address.
func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	return r.getOne(ctx, `email=$1`, email)
}

func (r *SubscriberRepository) Create(ctx context.Context, s *model.Subscriber) error {
	query := `
        INSERT INTO subscribers (email, first_name, last_name, status, source, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (email) DO NOTHING
        RETURNING ` + subscriberColumns
	created, err := scanSubscriber(r.DB.QueryRowContext(ctx, query, s.Email, s.FirstName, s.LastName, s.Status, s.Source))
	if err == nil {
		*s = *created
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("insert subscriber: %w", err)
	}

	// lost the race to a concurrent insert
	existing, err := r.GetByEmail(ctx, s.Email)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("subscriber %s vanished after conflict", s.Email)
	}
	*s = *existing
	return nil
}

func (r *SubscriberRepository) ListActiveMembers(ctx context.Context, listIDs []int) ([]model.ListMember, error) {
	members := []model.ListMember{}
	if len(listIDs) == 0 {
		return members, nil
	}
	query := `
        SELECT ls.list_id, s.id, s.email, s.first_name, s.last_name
        FROM list_subscriptions ls
        JOIN subscribers s ON s.id = ls.subscriber_id
        WHERE ls.list_id = ANY($1) AND ls.status = 'active'
        ORDER BY ls.list_id, s.id
    `
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(toInt64s(listIDs)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m model.ListMember
		if err := rows.Scan(&m.ListID, &m.SubscriberID, &m.Email, &m.FirstName, &m.LastName); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *SubscriberRepository) MarkBounced(ctx context.Context, id int) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE subscribers SET status='bounced', updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *SubscriberRepository) TouchEngagement(ctx context.Context, id int, at time.Time) error {
	query := `
        UPDATE subscribers
        SET last_engagement_at = GREATEST(COALESCE(last_engagement_at, $1), $1), updated_at=NOW()
        WHERE id=$2
    `
	_, err := r.DB.ExecContext(ctx, query, at, id)
	return err
}

func (r *SubscriberRepository) Unsubscribe(ctx context.Context, id int, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE subscribers
        SET status='unsubscribed', unsubscribed_at=COALESCE(unsubscribed_at, $1), updated_at=NOW()
        WHERE id=$2`, at, id)
	if err != nil {
		return fmt.Errorf("unsubscribe subscriber %d: %w", id, err)
	}
	_, err = r.DB.ExecContext(ctx, `
        UPDATE list_subscriptions
        SET status='unsubscribed', unsubscribed_at=COALESCE(unsubscribed_at, $1)
        WHERE subscriber_id=$2`, at, id)
	if err != nil {
		return fmt.Errorf("unsubscribe list memberships of %d: %w", id, err)
	}
	return nil
}

var _ SubscriberRepositoryInterface = (*SubscriberRepository)(nil)
