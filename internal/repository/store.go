package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every repo works inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories is the set of repos the event recorder needs inside one transaction.
type Repositories struct {
	Campaigns   CampaignRepositoryInterface
	Subscribers SubscriberRepositoryInterface
	Recipients  RecipientRepositoryInterface
	Events      EventRepositoryInterface
}

// TxRunner runs fn in a single transaction: commit when fn returns nil, rollback otherwise.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(Repositories) error) error
}

type SQLStore struct {
	DB *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{DB: db} }

func (s *SQLStore) Campaigns() *CampaignRepository     { return &CampaignRepository{DB: s.DB} }
func (s *SQLStore) Customers() *CustomerRepository     { return &CustomerRepository{DB: s.DB} }
func (s *SQLStore) Subscribers() *SubscriberRepository { return &SubscriberRepository{DB: s.DB} }
func (s *SQLStore) Recipients() *RecipientRepository   { return &RecipientRepository{DB: s.DB} }
func (s *SQLStore) Events() *EventRepository           { return &EventRepository{DB: s.DB} }
func (s *SQLStore) Templates() *TemplateRepository     { return &TemplateRepository{DB: s.DB} }
func (s *SQLStore) Activity() *ActivityRepository      { return &ActivityRepository{DB: s.DB} }

func (s *SQLStore) WithTx(ctx context.Context, fn func(Repositories) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	repos := Repositories{
		Campaigns:   &CampaignRepository{DB: tx},
		Subscribers: &SubscriberRepository{DB: tx},
		Recipients:  &RecipientRepository{DB: tx, ForUpdate: true},
		Events:      &EventRepository{DB: tx},
	}
	if err := fn(repos); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// nullIfEmpty maps "" to NULL for nullable text columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func toInt64s(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

var _ TxRunner = (*SQLStore)(nil)
