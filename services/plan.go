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
	"github.com/sbotor/budget-manager/utils"
)

// ErrInvalidPlan reports a plan definition outside the allowed period
// bounds.
var ErrInvalidPlan = errors.New("invalid plan definition")

// PlanService manages recurring-operation plans and the catch-up sweep
// that turns elapsed periods into operations. A plan left unchecked for
// several periods is caught up one operation per period, never skipped
// ahead.
type PlanService struct {
	store store.Store
	now   func() time.Time
}

func NewPlanService(s store.Store) *PlanService {
	return &PlanService{store: s, now: time.Now}
}

func (s *PlanService) today() time.Time {
	return models.DateOnly(s.now())
}

// CreatePlanInput is the validated payload for a new plan.
type CreatePlanInput struct {
	Amount      decimal.Decimal
	Description string
	LabelID     string
	Period      models.Period
	PeriodCount int
	// NextDate defaults to today when zero.
	NextDate time.Time
}

// Create stores the plan. A plan that is already due, including one due
// today, spawns its owed operations immediately inside the creation
// transaction; the spawned operations are returned alongside the plan.
func (s *PlanService) Create(ctx context.Context, accountID string, in CreatePlanInput) (*models.OperationPlan, []models.Operation, error) {
	if !in.Period.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown period %q", ErrInvalidPlan, in.Period)
	}
	if in.PeriodCount < models.MinPeriodCount || in.PeriodCount > models.MaxPeriodCount {
		return nil, nil, fmt.Errorf("%w: period count %d out of range", ErrInvalidPlan, in.PeriodCount)
	}

	nextDate := s.today()
	if !in.NextDate.IsZero() {
		nextDate = models.DateOnly(in.NextDate)
	}

	plan := &models.OperationPlan{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		LabelID:     in.LabelID,
		Amount:      in.Amount,
		Description: in.Description,
		Period:      in.Period,
		PeriodCount: in.PeriodCount,
		NextDate:    nextDate,
		CreatedAt:   s.now(),
	}

	var spawned []models.Operation
	err := s.store.Transact(ctx, func(tx store.Store) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		if err := tx.CreatePlan(ctx, plan); err != nil {
			return err
		}

		for plan.IsDue(s.today()) {
			op, err := s.spawn(ctx, tx, plan)
			if err != nil {
				return err
			}
			spawned = append(spawned, *op)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return plan, spawned, nil
}

func (s *PlanService) Get(ctx context.Context, id string) (*models.OperationPlan, error) {
	return s.store.GetPlan(ctx, id)
}

func (s *PlanService) ListByAccount(ctx context.Context, accountID string) ([]models.OperationPlan, error) {
	return s.store.ListPlans(ctx, accountID)
}

// Delete removes the plan. Operations it spawned stay, with their plan
// reference nulled.
func (s *PlanService) Delete(ctx context.Context, id string) error {
	return s.store.DeletePlan(ctx, id)
}

// spawn creates one operation from the plan and advances its next due
// date, persisting both. Callers must run it inside a transaction: the
// operation, the balance update and the date advance commit or fail as
// one, so a failure leaves the period still owed.
func (s *PlanService) spawn(ctx context.Context, tx store.Store, plan *models.OperationPlan) (*models.Operation, error) {
	op := &models.Operation{
		ID:           uuid.New().String(),
		AccountID:    plan.AccountID,
		LabelID:      plan.LabelID,
		Amount:       plan.Amount,
		Description:  plan.Description,
		CreationDate: s.today(),
		PlanID:       plan.ID,
	}

	account, err := tx.GetAccount(ctx, plan.AccountID)
	if err != nil {
		return nil, err
	}

	if err := tx.CreateOperation(ctx, op); err != nil {
		return nil, err
	}

	account.AddToFinal(op.Amount)
	if err := tx.UpdateAccountBalances(ctx, account); err != nil {
		return nil, err
	}

	plan.NextDate = plan.CalculateNext(time.Time{})
	if err := tx.UpdatePlan(ctx, plan); err != nil {
		return nil, err
	}
	return op, nil
}

// RunDue catches the plan up: one operation per elapsed period, oldest
// first, each period in its own transaction. The plan's next date is only
// advanced when the period's operation committed, so a crash or storage
// error mid-run leaves the failed period owed and the run resumable.
// Returns the number of operations created.
func (s *PlanService) RunDue(ctx context.Context, planID string) (int, error) {
	created := 0
	for {
		done := false
		err := s.store.Transact(ctx, func(tx store.Store) error {
			plan, err := tx.GetPlan(ctx, planID)
			if err != nil {
				return err
			}
			if !plan.IsDue(s.today()) {
				done = true
				return nil
			}
			_, err = s.spawn(ctx, tx, plan)
			return err
		})
		if err != nil {
			return created, err
		}
		if done {
			return created, nil
		}
		created++
	}
}

// RunPlannerLoop sweeps immediately and then on every interval tick until
// the context is cancelled. Sweep errors are logged, not fatal: the next
// tick retries whatever is still due.
func RunPlannerLoop(ctx context.Context, plans *PlanService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		created, err := plans.Sweep(ctx)
		if err != nil {
			utils.SafeError("sweep finished with errors: %v", err)
		}
		if created > 0 {
			utils.SafeInfo("sweep created %d operation(s)", created)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs RunDue over every due plan. A failing plan is logged and does
// not stop the others; the joined errors come back to the caller.
func (s *PlanService) Sweep(ctx context.Context) (int, error) {
	ids, err := s.store.ListDuePlanIDs(ctx, s.today())
	if err != nil {
		return 0, fmt.Errorf("list due plans: %w", err)
	}

	total := 0
	var errs []error
	for _, id := range ids {
		n, err := s.RunDue(ctx, id)
		total += n
		if err != nil {
			utils.SafeError("plan %s: %v", utils.MaskID(id), err)
			errs = append(errs, fmt.Errorf("plan %s: %w", id, err))
		}
	}

	return total, errors.Join(errs...)
}
