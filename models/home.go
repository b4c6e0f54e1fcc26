package models

import "time"

// Home groups a set of accounts that share labels and permissions.
type Home struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`

	// AdminID points at the administrator account. It is empty only while
	// the home is being created, before the admin account exists.
	AdminID string `json:"admin_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
