package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbotor/budget-manager/models"
	"github.com/sbotor/budget-manager/store"
)

// AccountService owns the two running balances of an account. All balance
// changes route through it so the ledger invariant holds after every write:
// final equals the sum of all operations, current the sum of finalized ones.
type AccountService struct {
	store store.Store
	now   func() time.Time
}

func NewAccountService(s store.Store) *AccountService {
	return &AccountService{store: s, now: time.Now}
}

func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// AddToCurrent adds a signed delta to the current balance and persists it,
// returning the new value. Values beyond the storage precision clamp
// silently.
func (s *AccountService) AddToCurrent(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := s.store.Transact(ctx, func(tx store.Store) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		out = account.AddToCurrent(amount)
		return tx.UpdateAccountBalances(ctx, account)
	})
	return out, err
}

// AddToFinal is the final-balance counterpart of AddToCurrent.
func (s *AccountService) AddToFinal(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := s.store.Transact(ctx, func(tx store.Store) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		out = account.AddToFinal(amount)
		return tx.UpdateAccountBalances(ctx, account)
	})
	return out, err
}

// Recalculate rebuilds both balances from the account's operations. Given
// the same operation set it must land on the same values the incremental
// updates produced; it exists as a repair path, not a routine one.
func (s *AccountService) Recalculate(ctx context.Context, accountID string) (*models.Account, error) {
	var account *models.Account
	err := s.store.Transact(ctx, func(tx store.Store) error {
		var err error
		account, err = tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		ops, err := tx.ListOperations(ctx, accountID)
		if err != nil {
			return fmt.Errorf("list operations: %w", err)
		}

		current := decimal.Zero
		final := decimal.Zero
		for _, op := range ops {
			final = final.Add(op.Amount)
			if op.Finalized() {
				current = current.Add(op.Amount)
			}
		}

		account.CurrentAmount = models.ClampBalance(current)
		account.FinalAmount = models.ClampBalance(final)
		return tx.UpdateAccountBalances(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// YearlyIncome sums the positive finalized operations of the current
// calendar year into one bucket per month.
func (s *AccountService) YearlyIncome(ctx context.Context, accountID string) ([12]decimal.Decimal, error) {
	return s.monthlyTotals(ctx, accountID, true)
}

// YearlyExpenses is the negative counterpart of YearlyIncome; amounts are
// reported as positive magnitudes.
func (s *AccountService) YearlyExpenses(ctx context.Context, accountID string) ([12]decimal.Decimal, error) {
	return s.monthlyTotals(ctx, accountID, false)
}

func (s *AccountService) monthlyTotals(ctx context.Context, accountID string, income bool) ([12]decimal.Decimal, error) {
	var totals [12]decimal.Decimal
	for i := range totals {
		totals[i] = decimal.Zero
	}

	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return totals, err
	}

	ops, err := s.store.ListOperations(ctx, accountID)
	if err != nil {
		return totals, err
	}

	year := s.now().Year()
	for _, op := range ops {
		if !op.Finalized() || op.FinalDate.Year() != year {
			continue
		}
		month := int(op.FinalDate.Month()) - 1
		if income && op.Amount.IsPositive() {
			totals[month] = totals[month].Add(op.Amount)
		} else if !income && op.Amount.IsNegative() {
			totals[month] = totals[month].Add(op.Amount.Neg())
		}
	}

	return totals, nil
}

// AvailableLabels lists the labels the account can tag operations with:
// its own, plus the home's shared ones unless includeHome is false.
func (s *AccountService) AvailableLabels(ctx context.Context, accountID string, includeHome bool) ([]models.Label, error) {
	return s.store.ListAccountLabels(ctx, accountID, includeHome)
}

func (s *AccountService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteAccount(ctx, id)
}
