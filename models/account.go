package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxBalance is the largest magnitude a balance can reach before it is
// clamped. It matches the NUMERIC(8,2) storage precision.
var MaxBalance = decimal.New(99999999, -2)

// Account is a single member's ledger within a home.
type Account struct {
	ID     string `json:"id"`
	HomeID string `json:"home_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`

	// ExtraPerms holds permissions granted on top of the role's base set.
	ExtraPerms []Permission `json:"extra_perms,omitempty"`

	// CurrentAmount excludes unfinalized operations.
	CurrentAmount decimal.Decimal `json:"current_amount"`
	// FinalAmount includes every operation the account owns.
	FinalAmount decimal.Decimal `json:"final_amount"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddToCurrent adds a signed delta to the current balance, clamping at
// MaxBalance, and returns the new value. The struct is not persisted.
func (a *Account) AddToCurrent(amount decimal.Decimal) decimal.Decimal {
	a.CurrentAmount = ClampBalance(a.CurrentAmount.Add(amount))
	return a.CurrentAmount
}

// AddToFinal adds a signed delta to the final balance, clamping at
// MaxBalance, and returns the new value. The struct is not persisted.
func (a *Account) AddToFinal(amount decimal.Decimal) decimal.Decimal {
	a.FinalAmount = ClampBalance(a.FinalAmount.Add(amount))
	return a.FinalAmount
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a *Account) IsMod() bool {
	return a.Role == RoleModerator
}

// HasPerm checks the role's base set first, then the extra grants.
func (a *Account) HasPerm(p Permission) bool {
	if a.Role.BasePerms().Has(p) {
		return true
	}
	for _, extra := range a.ExtraPerms {
		if extra == p {
			return true
		}
	}
	return false
}

// ClampBalance limits v to the storable magnitude. Exceeding the precision
// is a known soft-clamp, not a rejected write.
func ClampBalance(v decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(MaxBalance) {
		return MaxBalance
	}
	if v.LessThan(MaxBalance.Neg()) {
		return MaxBalance.Neg()
	}
	return v
}
