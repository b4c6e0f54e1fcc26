package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbotor/budget-manager/models"
)

func seedAccount(t *testing.T, m *Memory) *models.Account {
	t.Helper()
	ctx := context.Background()

	home := &models.Home{ID: "home-1", Name: "Test", Currency: "USD", CreatedAt: time.Now()}
	if err := m.CreateHome(ctx, home); err != nil {
		t.Fatalf("create home: %v", err)
	}
	account := &models.Account{
		ID:            "acct-1",
		HomeID:        home.ID,
		Name:          "alice",
		Role:          models.RoleAdmin,
		CurrentAmount: decimal.Zero,
		FinalAmount:   decimal.Zero,
	}
	if err := m.CreateAccount(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return account
}

func TestTransactRollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	account := seedAccount(t, m)

	boom := errors.New("boom")
	err := m.Transact(ctx, func(tx Store) error {
		acc, err := tx.GetAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		acc.FinalAmount = decimal.New(100, 0)
		if err := tx.UpdateAccountBalances(ctx, acc); err != nil {
			return err
		}
		if err := tx.CreateOperation(ctx, &models.Operation{
			ID:        "op-1",
			AccountID: account.ID,
			Amount:    decimal.New(100, 0),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	acc, err := m.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !acc.FinalAmount.IsZero() {
		t.Errorf("balance update survived rollback: %s", acc.FinalAmount)
	}
	if _, err := m.GetOperation(ctx, "op-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("operation survived rollback: err = %v", err)
	}
}

func TestTransactCommitsOnSuccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	account := seedAccount(t, m)

	err := m.Transact(ctx, func(tx Store) error {
		return tx.CreateOperation(ctx, &models.Operation{
			ID:        "op-1",
			AccountID: account.ID,
			Amount:    decimal.New(5, 0),
		})
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}

	if _, err := m.GetOperation(ctx, "op-1"); err != nil {
		t.Errorf("committed operation not readable: %v", err)
	}
}

func TestFailCreateOperationFiresOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	account := seedAccount(t, m)

	injected := errors.New("injected")
	m.FailCreateOperation = injected

	op := &models.Operation{ID: "op-1", AccountID: account.ID, Amount: decimal.New(1, 0)}
	if err := m.CreateOperation(ctx, op); !errors.Is(err, injected) {
		t.Fatalf("err = %v, want injected", err)
	}
	if err := m.CreateOperation(ctx, op); err != nil {
		t.Fatalf("second create: %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	account := seedAccount(t, m)

	// Mutating a fetched account must not leak into the store without an
	// explicit update.
	acc, err := m.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.ExtraPerms = append(acc.ExtraPerms, models.PermMakeMod)
	acc.FinalAmount = decimal.New(999, 0)

	stored, err := m.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if len(stored.ExtraPerms) != 0 || !stored.FinalAmount.IsZero() {
		t.Error("caller mutation leaked into stored account")
	}
}

func TestLabelScopeUniqueness(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	account := seedAccount(t, m)

	home := &models.Label{ID: "l-1", Name: "Food", HomeID: account.HomeID}
	if err := m.CreateLabel(ctx, home); err != nil {
		t.Fatalf("create home label: %v", err)
	}
	dup := &models.Label{ID: "l-2", Name: "Food", HomeID: account.HomeID}
	if err := m.CreateLabel(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate home label err = %v, want ErrDuplicate", err)
	}

	personal := &models.Label{ID: "l-3", Name: "Food", HomeID: account.HomeID, AccountID: account.ID}
	if err := m.CreateLabel(ctx, personal); err != nil {
		t.Errorf("same name in personal scope rejected: %v", err)
	}

	// EnsureLabel adopts the existing row instead of failing.
	ensure := &models.Label{ID: "l-4", Name: "Food", HomeID: account.HomeID}
	if err := m.EnsureLabel(ctx, ensure); err != nil {
		t.Fatalf("ensure label: %v", err)
	}
	if ensure.ID != "l-1" {
		t.Errorf("ensure adopted id %q, want existing l-1", ensure.ID)
	}
}
