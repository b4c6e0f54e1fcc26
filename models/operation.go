package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation is a single ledger entry. An operation without a final date is
// pending: it counts towards the account's final balance but not the
// current one.
type Operation struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	LabelID   string `json:"label_id,omitempty"`

	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`

	CreationDate time.Time  `json:"creation_date"`
	FinalDate    *time.Time `json:"final_date,omitempty"`

	// PlanID is set when the operation was spawned by a recurring plan.
	PlanID string `json:"plan_id,omitempty"`

	// SourceID links the incoming leg of an internal transaction to its
	// outgoing leg.
	SourceID string `json:"source_id,omitempty"`
}

// Finalized reports whether the operation's effect is included in the
// current balance.
func (o *Operation) Finalized() bool {
	return o.FinalDate != nil
}

// DateOnly strips the time-of-day component, normalizing to midnight UTC.
// Ledger dates are pure dates, never datetimes.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
