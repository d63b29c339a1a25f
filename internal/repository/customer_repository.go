package repository

import (
	"context"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// CustomerRepositoryInterface defines methods used by the audience resolver
type CustomerRepositoryInterface interface {
	ListWithEmail(ctx context.Context) ([]model.Customer, error)
}

// CustomerRepository is the concrete implementation
type CustomerRepository struct {
	DB DBTX
}

// ListWithEmail fetches every customer bearing a non-empty email, in id order.
func (r *CustomerRepository) ListWithEmail(ctx context.Context) ([]model.Customer, error) {
	query := `
        SELECT id, email, first_name, last_name
        FROM customers
        WHERE email IS NOT NULL AND TRIM(email) <> ''
        ORDER BY id
    `
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []model.Customer{}
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

var _ CustomerRepositoryInterface = (*CustomerRepository)(nil)
