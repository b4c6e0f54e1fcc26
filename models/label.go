package models

import "time"

// Label is a category tag. Scope is derived from ownership: a global label
// has neither home nor account, a home label has only a home and a personal
// label has both. Names are unique within their scope.
type Label struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	HomeID    string    `json:"home_id,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// InternalLabel is the reserved global label attached to both legs of an
// internal transaction.
const InternalLabel = "Internal"

// DefaultLabels are seeded for every new home.
var DefaultLabels = []string{
	"Food",
	"Transport",
	"Entertainment",
	"Health",
	"Clothes",
	"Accomodation",
	"Education",
	"Savings",
	"Other",
}

// GlobalLabels are seeded once for the whole installation.
var GlobalLabels = []string{InternalLabel}

func (l *Label) IsGlobal() bool {
	return l.HomeID == "" && l.AccountID == ""
}

func (l *Label) IsHomeLabel() bool {
	return l.HomeID != "" && l.AccountID == ""
}

func (l *Label) IsPersonal() bool {
	return l.AccountID != ""
}

// String prefixes home and global labels so they are distinguishable from
// personal ones in listings.
func (l *Label) String() string {
	switch {
	case l.IsGlobal():
		return "[G] " + l.Name
	case l.IsHomeLabel():
		return "[H] " + l.Name
	}
	return l.Name
}
