package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Period is the unit of time between operations spawned by a plan.
type Period string

const (
	PeriodDay   Period = "D"
	PeriodWeek  Period = "W"
	PeriodMonth Period = "M"
	PeriodYear  Period = "Y"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}

// Period count bounds for a plan.
const (
	MinPeriodCount = 1
	MaxPeriodCount = 20
)

// OperationPlan is a recurring-operation template. Every PeriodCount periods
// a new operation is spawned from it. NextDate is the next day an operation
// is owed; it is a pure date, never a datetime.
type OperationPlan struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	LabelID   string `json:"label_id,omitempty"`

	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`

	Period      Period    `json:"period"`
	PeriodCount int       `json:"period_count"`
	NextDate    time.Time `json:"next_date"`

	CreatedAt time.Time `json:"created_at"`
}

// CalculateNext returns base plus one full period. Months count as 30 days
// and years as 365; the drift against the real calendar is accepted. A zero
// base means the plan's own NextDate.
func (p *OperationPlan) CalculateNext(base time.Time) time.Time {
	if base.IsZero() {
		base = p.NextDate
	}
	base = DateOnly(base)

	switch p.Period {
	case PeriodDay:
		return base.AddDate(0, 0, p.PeriodCount)
	case PeriodWeek:
		return base.AddDate(0, 0, 7*p.PeriodCount)
	case PeriodMonth:
		return base.AddDate(0, 0, 30*p.PeriodCount)
	case PeriodYear:
		return base.AddDate(0, 0, 365*p.PeriodCount)
	}
	return base
}

// IsDue reports whether an operation is owed on or before the given day.
func (p *OperationPlan) IsDue(today time.Time) bool {
	return !p.NextDate.After(DateOnly(today))
}
