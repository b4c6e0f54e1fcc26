package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sbotor/budget-manager/models"
	"github.com/sbotor/budget-manager/store"
)

// HomeService manages homes, their member accounts and the role and
// permission assignments within them.
type HomeService struct {
	store store.Store
	now   func() time.Time
}

func NewHomeService(s store.Store) *HomeService {
	return &HomeService{store: s, now: time.Now}
}

// Create sets up a home with its administrator account and the default
// label set in one transaction. A failure anywhere rolls the whole
// creation back.
func (s *HomeService) Create(ctx context.Context, name, currency, adminName string) (*models.Home, *models.Account, error) {
	home := &models.Home{
		ID:        uuid.New().String(),
		Name:      name,
		Currency:  currency,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	admin := &models.Account{
		ID:            uuid.New().String(),
		HomeID:        home.ID,
		Name:          adminName,
		Role:          models.RoleAdmin,
		CurrentAmount: decimal.Zero,
		FinalAmount:   decimal.Zero,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}

	err := s.store.Transact(ctx, func(tx store.Store) error {
		if err := tx.CreateHome(ctx, home); err != nil {
			return err
		}
		if err := tx.CreateAccount(ctx, admin); err != nil {
			return err
		}

		home.AdminID = admin.ID
		if err := tx.UpdateHome(ctx, home); err != nil {
			return err
		}

		return seedHomeDefaults(ctx, tx, home.ID, s.now)
	})
	if err != nil {
		return nil, nil, err
	}
	return home, admin, nil
}

func (s *HomeService) Get(ctx context.Context, id string) (*models.Home, error) {
	return s.store.GetHome(ctx, id)
}

func (s *HomeService) ListAccounts(ctx context.Context, homeID string) ([]models.Account, error) {
	return s.store.ListAccounts(ctx, homeID)
}

// AddAccount creates a regular member account in the home.
func (s *HomeService) AddAccount(ctx context.Context, homeID, name string) (*models.Account, error) {
	if _, err := s.store.GetHome(ctx, homeID); err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:            uuid.New().String(),
		HomeID:        homeID,
		Name:          name,
		Role:          models.RoleUser,
		CurrentAmount: decimal.Zero,
		FinalAmount:   decimal.Zero,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// ChangeAdmin hands the admin role to another account of the same home.
// The previous admin keeps moderator rights, as when it was first
// promoted.
func (s *HomeService) ChangeAdmin(ctx context.Context, homeID, accountID string) error {
	return s.store.Transact(ctx, func(tx store.Store) error {
		home, err := tx.GetHome(ctx, homeID)
		if err != nil {
			return err
		}

		next, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if next.HomeID != homeID {
			return fmt.Errorf("account %s: %w", accountID, store.ErrNotFound)
		}

		if home.AdminID != "" && home.AdminID != next.ID {
			prev, err := tx.GetAccount(ctx, home.AdminID)
			if err != nil {
				return err
			}
			prev.Role = models.RoleModerator
			if err := tx.UpdateAccount(ctx, prev); err != nil {
				return err
			}
		}

		next.Role = models.RoleAdmin
		if err := tx.UpdateAccount(ctx, next); err != nil {
			return err
		}

		home.AdminID = next.ID
		return tx.UpdateHome(ctx, home)
	})
}

// AddMod promotes a regular account to moderator. Admins are left alone.
func (s *HomeService) AddMod(ctx context.Context, accountID string) error {
	return s.store.Transact(ctx, func(tx store.Store) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.IsAdmin() || account.IsMod() {
			return nil
		}
		account.Role = models.RoleModerator
		return tx.UpdateAccount(ctx, account)
	})
}

// RemoveMod demotes a moderator back to a regular account and clears any
// extra grants it accumulated.
func (s *HomeService) RemoveMod(ctx context.Context, accountID string) error {
	return s.store.Transact(ctx, func(tx store.Store) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.IsAdmin() {
			return nil
		}
		account.Role = models.RoleUser
		account.ExtraPerms = nil
		return tx.UpdateAccount(ctx, account)
	})
}

// GrantPerm adds an extra permission on top of the account's role set.
// Returns true when the account now holds it: granting an already-held
// permission succeeds, granting one outside the role's grantable set does
// not.
func (s *HomeService) GrantPerm(ctx context.Context, accountID string, perm models.Permission) (bool, error) {
	granted := false
	err := s.store.Transact(ctx, func(tx store.Store) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.HasPerm(perm) {
			granted = true
			return nil
		}
		if !account.Role.GrantablePerms().Has(perm) {
			return nil
		}

		account.ExtraPerms = append(account.ExtraPerms, perm)
		granted = true
		return tx.UpdateAccount(ctx, account)
	})
	return granted, err
}

// RevokePerm removes an extra grant. Returns true when the account no
// longer holds it as an extra; base role permissions cannot be revoked.
func (s *HomeService) RevokePerm(ctx context.Context, accountID string, perm models.Permission) (bool, error) {
	revoked := false
	err := s.store.Transact(ctx, func(tx store.Store) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		kept := account.ExtraPerms[:0]
		for _, p := range account.ExtraPerms {
			if p == perm {
				revoked = true
				continue
			}
			kept = append(kept, p)
		}
		if !revoked {
			// Not held as an extra grant; nothing to do.
			revoked = !account.Role.BasePerms().Has(perm)
			return nil
		}

		account.ExtraPerms = kept
		return tx.UpdateAccount(ctx, account)
	})
	return revoked, err
}

// Delete removes the home and everything in it: accounts, their
// operations, plans and labels.
func (s *HomeService) Delete(ctx context.Context, homeID string) error {
	return s.store.DeleteHome(ctx, homeID)
}
