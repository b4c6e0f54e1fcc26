package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sbotor/budget-manager/models"
	"github.com/sbotor/budget-manager/store"
)

// OperationService drives the operation lifecycle. Every create, finalize
// or delete applies an equal and opposite update to the owning account's
// balances exactly once, inside the same transaction as the row change.
type OperationService struct {
	store store.Store
	now   func() time.Time
}

func NewOperationService(s store.Store) *OperationService {
	return &OperationService{store: s, now: time.Now}
}

func (s *OperationService) today() time.Time {
	return models.DateOnly(s.now())
}

// CreateOperationInput is the validated payload for a new operation.
type CreateOperationInput struct {
	Amount      decimal.Decimal
	Description string
	LabelID     string
	Finalized   bool
	// FinalDate overrides the finalization day when Finalized is set;
	// empty means today.
	FinalDate *time.Time
}

// Create inserts the operation and counts it towards the final balance,
// and towards the current balance too when it is born finalized.
func (s *OperationService) Create(ctx context.Context, accountID string, in CreateOperationInput) (*models.Operation, error) {
	op := &models.Operation{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		LabelID:      in.LabelID,
		Amount:       in.Amount,
		Description:  in.Description,
		CreationDate: s.today(),
	}
	if in.Finalized {
		day := s.today()
		if in.FinalDate != nil {
			day = models.DateOnly(*in.FinalDate)
		}
		op.FinalDate = &day
	}

	err := s.store.Transact(ctx, func(tx store.Store) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		account.AddToFinal(op.Amount)
		if op.Finalized() {
			account.AddToCurrent(op.Amount)
		}

		if err := tx.CreateOperation(ctx, op); err != nil {
			return err
		}
		return tx.UpdateAccountBalances(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

func (s *OperationService) Get(ctx context.Context, id string) (*models.Operation, error) {
	return s.store.GetOperation(ctx, id)
}

func (s *OperationService) ListByAccount(ctx context.Context, accountID string) ([]models.Operation, error) {
	return s.store.ListOperations(ctx, accountID)
}

// Finalize marks the operation settled and moves its amount into the
// current balance. Finalizing an already-finalized operation is a no-op;
// the balance changes on the first call only.
func (s *OperationService) Finalize(ctx context.Context, id string, at *time.Time) (*models.Operation, error) {
	var op *models.Operation
	err := s.store.Transact(ctx, func(tx store.Store) error {
		var err error
		op, err = tx.GetOperation(ctx, id)
		if err != nil {
			return err
		}
		if op.Finalized() {
			return nil
		}

		day := s.today()
		if at != nil {
			day = models.DateOnly(*at)
		}
		op.FinalDate = &day
		if err := tx.UpdateOperation(ctx, op); err != nil {
			return err
		}

		account, err := tx.GetAccount(ctx, op.AccountID)
		if err != nil {
			return err
		}
		account.AddToCurrent(op.Amount)
		return tx.UpdateAccountBalances(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Delete removes the operation and reverses its balance contributions.
// When the operation is one leg of an internal transaction the paired leg
// is unlinked and deleted too, with its own reversal, in the same
// transaction.
func (s *OperationService) Delete(ctx context.Context, id string) error {
	return s.store.Transact(ctx, func(tx store.Store) error {
		op, err := tx.GetOperation(ctx, id)
		if err != nil {
			return err
		}

		pair, err := s.findPair(ctx, tx, op)
		if err != nil {
			return err
		}
		if pair != nil {
			// Break the link before deleting so the pair's removal
			// cannot cascade back to op.
			if pair.SourceID != "" {
				pair.SourceID = ""
				if err := tx.UpdateOperation(ctx, pair); err != nil {
					return err
				}
			} else {
				op.SourceID = ""
				if err := tx.UpdateOperation(ctx, op); err != nil {
					return err
				}
			}
			if err := s.removeOne(ctx, tx, pair); err != nil {
				return err
			}
		}

		return s.removeOne(ctx, tx, op)
	})
}

func (s *OperationService) findPair(ctx context.Context, tx store.Store, op *models.Operation) (*models.Operation, error) {
	if op.SourceID != "" {
		pair, err := tx.GetOperation(ctx, op.SourceID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return pair, err
	}

	pair, err := tx.GetOperationBySource(ctx, op.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return pair, err
}

func (s *OperationService) removeOne(ctx context.Context, tx store.Store, op *models.Operation) error {
	account, err := tx.GetAccount(ctx, op.AccountID)
	if err != nil {
		return err
	}

	account.AddToFinal(op.Amount.Neg())
	if op.Finalized() {
		account.AddToCurrent(op.Amount.Neg())
	}

	if err := tx.UpdateAccountBalances(ctx, account); err != nil {
		return err
	}
	return tx.DeleteOperation(ctx, op.ID)
}

// MakeTransaction moves amount between two accounts of the same home as a
// pair of finalized operations under the global Internal label: a negative
// outgoing leg and a positive incoming one linked to it. An invalid pair
// (missing account, same account on both sides, different homes) yields a
// nil pair and no error: that is an expected form-level outcome, not a
// system failure.
func (s *OperationService) MakeTransaction(ctx context.Context, sourceID, destinationID string, amount decimal.Decimal, description string) (*models.Operation, *models.Operation, error) {
	if sourceID == "" || destinationID == "" || sourceID == destinationID {
		return nil, nil, nil
	}

	var outgoing, incoming *models.Operation
	rejected := false

	err := s.store.Transact(ctx, func(tx store.Store) error {
		source, err := tx.GetAccount(ctx, sourceID)
		if errors.Is(err, store.ErrNotFound) {
			rejected = true
			return nil
		}
		if err != nil {
			return err
		}

		destination, err := tx.GetAccount(ctx, destinationID)
		if errors.Is(err, store.ErrNotFound) {
			rejected = true
			return nil
		}
		if err != nil {
			return err
		}

		if source.HomeID != destination.HomeID {
			rejected = true
			return nil
		}

		label := &models.Label{
			ID:        uuid.New().String(),
			Name:      models.InternalLabel,
			IsDefault: true,
			CreatedAt: s.now(),
		}
		if err := tx.EnsureLabel(ctx, label); err != nil {
			return fmt.Errorf("ensure internal label: %w", err)
		}

		day := s.today()
		outgoing = &models.Operation{
			ID:           uuid.New().String(),
			AccountID:    source.ID,
			LabelID:      label.ID,
			Amount:       amount.Neg(),
			Description:  description,
			CreationDate: day,
			FinalDate:    &day,
		}
		incoming = &models.Operation{
			ID:           uuid.New().String(),
			AccountID:    destination.ID,
			LabelID:      label.ID,
			Amount:       amount,
			Description:  description,
			CreationDate: day,
			FinalDate:    &day,
			SourceID:     outgoing.ID,
		}

		if err := tx.CreateOperation(ctx, outgoing); err != nil {
			return err
		}
		if err := tx.CreateOperation(ctx, incoming); err != nil {
			return err
		}

		source.AddToFinal(outgoing.Amount)
		source.AddToCurrent(outgoing.Amount)
		if err := tx.UpdateAccountBalances(ctx, source); err != nil {
			return err
		}

		destination.AddToFinal(incoming.Amount)
		destination.AddToCurrent(incoming.Amount)
		return tx.UpdateAccountBalances(ctx, destination)
	})
	if err != nil {
		return nil, nil, err
	}
	if rejected {
		return nil, nil, nil
	}
	return outgoing, incoming, nil
}
