// internal/model/customer.go
package model

// Customer is a CRM client record. Only the fields the all_clients audience reads.
type Customer struct {
	ID        int    `db:"id" json:"id"`
	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
}
