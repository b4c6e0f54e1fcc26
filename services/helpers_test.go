package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbotor/budget-manager/models"
	"github.com/sbotor/budget-manager/store"
)

// fakeClock lets tests move "today" around.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(days int) {
	c.t = c.t.AddDate(0, 0, days)
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse day %q: %v", value, err)
	}
	return parsed
}

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return parsed
}

// fixture wires every service onto one memory store sharing one clock,
// with a home and its admin account already created.
type fixture struct {
	store    *store.Memory
	clock    *fakeClock
	homes    *HomeService
	accounts *AccountService
	ops      *OperationService
	labels   *LabelService
	plans    *PlanService

	home  *models.Home
	admin *models.Account
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()

	f := &fixture{
		store: store.NewMemory(),
		clock: &fakeClock{t: day(t, today)},
	}
	f.homes = NewHomeService(f.store)
	f.accounts = NewAccountService(f.store)
	f.ops = NewOperationService(f.store)
	f.labels = NewLabelService(f.store)
	f.plans = NewPlanService(f.store)

	f.homes.now = f.clock.Now
	f.accounts.now = f.clock.Now
	f.ops.now = f.clock.Now
	f.labels.now = f.clock.Now
	f.plans.now = f.clock.Now

	home, admin, err := f.homes.Create(context.Background(), "Test Home", "USD", "alice")
	if err != nil {
		t.Fatalf("create home: %v", err)
	}
	f.home = home
	f.admin = admin
	return f
}

func (f *fixture) account(t *testing.T, id string) *models.Account {
	t.Helper()
	account, err := f.store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return account
}

// checkBalances asserts both running balances of an account.
func (f *fixture) checkBalances(t *testing.T, accountID, current, final string) {
	t.Helper()
	account := f.account(t, accountID)
	if !account.CurrentAmount.Equal(dec(t, current)) {
		t.Errorf("current = %s, want %s", account.CurrentAmount, current)
	}
	if !account.FinalAmount.Equal(dec(t, final)) {
		t.Errorf("final = %s, want %s", account.FinalAmount, final)
	}
}

// checkLedgerInvariant verifies the balances against the operation set
// directly: final is the sum of everything, current of the finalized part.
func (f *fixture) checkLedgerInvariant(t *testing.T, accountID string) {
	t.Helper()

	account := f.account(t, accountID)
	ops, err := f.store.ListOperations(context.Background(), accountID)
	if err != nil {
		t.Fatalf("list operations: %v", err)
	}

	current := decimal.Zero
	final := decimal.Zero
	for _, op := range ops {
		final = final.Add(op.Amount)
		if op.Finalized() {
			current = current.Add(op.Amount)
		}
	}

	if !account.FinalAmount.Equal(final) {
		t.Errorf("final = %s, operations sum to %s", account.FinalAmount, final)
	}
	if !account.CurrentAmount.Equal(current) {
		t.Errorf("current = %s, finalized operations sum to %s", account.CurrentAmount, current)
	}
}
