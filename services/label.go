package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sbotor/budget-manager/models"
	"github.com/sbotor/budget-manager/store"
)

// LabelService manages category labels across their three scopes: global,
// home and personal. Duplicate names within a scope come back as
// store.ErrDuplicate without creating a row.
type LabelService struct {
	store store.Store
	now   func() time.Time
}

func NewLabelService(s store.Store) *LabelService {
	return &LabelService{store: s, now: time.Now}
}

// AddHomeLabel creates a label shared by every account of the home.
func (s *LabelService) AddHomeLabel(ctx context.Context, homeID, name string) (*models.Label, error) {
	if _, err := s.store.GetHome(ctx, homeID); err != nil {
		return nil, err
	}

	label := &models.Label{
		ID:        uuid.New().String(),
		Name:      name,
		HomeID:    homeID,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateLabel(ctx, label); err != nil {
		return nil, err
	}
	return label, nil
}

// AddPersonalLabel creates a label visible only to the given account.
func (s *LabelService) AddPersonalLabel(ctx context.Context, accountID, name string) (*models.Label, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	label := &models.Label{
		ID:        uuid.New().String(),
		Name:      name,
		HomeID:    account.HomeID,
		AccountID: account.ID,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateLabel(ctx, label); err != nil {
		return nil, err
	}
	return label, nil
}

// Rename changes the label's name, subject to the same scope uniqueness as
// creation.
func (s *LabelService) Rename(ctx context.Context, labelID, newName string) (*models.Label, error) {
	label, err := s.store.GetLabel(ctx, labelID)
	if err != nil {
		return nil, err
	}
	label.Name = newName
	if err := s.store.UpdateLabel(ctx, label); err != nil {
		return nil, err
	}
	return label, nil
}

func (s *LabelService) Delete(ctx context.Context, labelID string) error {
	return s.store.DeleteLabel(ctx, labelID)
}

// HomeLabels lists a home's labels; homeOnly drops the personal ones.
func (s *LabelService) HomeLabels(ctx context.Context, homeID string, homeOnly bool) ([]models.Label, error) {
	return s.store.ListHomeLabels(ctx, homeID, homeOnly)
}

// GetGlobal fetches a global label by name, seeding it first if absent.
func (s *LabelService) GetGlobal(ctx context.Context, name string) (*models.Label, error) {
	label, err := s.store.GetGlobalLabel(ctx, name)
	if err == nil {
		return label, nil
	}
	if err != store.ErrNotFound {
		return nil, err
	}

	if err := s.EnsureGlobals(ctx); err != nil {
		return nil, err
	}
	return s.store.GetGlobalLabel(ctx, name)
}

// EnsureGlobals seeds the installation-wide labels. The upsert is guarded
// by the storage unique constraint, so concurrent processes can run it
// freely.
func (s *LabelService) EnsureGlobals(ctx context.Context) error {
	for _, name := range models.GlobalLabels {
		label := &models.Label{
			ID:        uuid.New().String(),
			Name:      name,
			IsDefault: true,
			CreatedAt: s.now(),
		}
		if err := s.store.EnsureLabel(ctx, label); err != nil {
			return fmt.Errorf("seed global label %q: %w", name, err)
		}
	}
	return nil
}

// SeedHomeDefaults creates the default label set for a home. Labels that
// already exist are left alone.
func (s *LabelService) SeedHomeDefaults(ctx context.Context, homeID string) error {
	return seedHomeDefaults(ctx, s.store, homeID, s.now)
}

func seedHomeDefaults(ctx context.Context, tx store.Store, homeID string, now func() time.Time) error {
	for _, name := range models.DefaultLabels {
		label := &models.Label{
			ID:        uuid.New().String(),
			Name:      name,
			HomeID:    homeID,
			IsDefault: true,
			CreatedAt: now(),
		}
		if err := tx.EnsureLabel(ctx, label); err != nil {
			return fmt.Errorf("seed label %q: %w", name, err)
		}
	}
	return nil
}
