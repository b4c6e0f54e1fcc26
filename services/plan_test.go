package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sbotor/budget-manager/models"
)

func TestDailyPlanCatchUp(t *testing.T) {
	f := newFixture(t, "2024-03-01")
	ctx := context.Background()

	plan, spawned, err := f.plans.Create(ctx, f.admin.ID, CreatePlanInput{
		Amount:      dec(t, "-5"),
		Description: "coffee",
		Period:      models.PeriodDay,
		PeriodCount: 1,
		NextDate:    day(t, "2024-03-02"),
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if len(spawned) != 0 {
		t.Fatalf("plan due tomorrow spawned %d operations", len(spawned))
	}

	// Eight elapsed days owe eight operations, one per period.
	f.clock.Advance(8) // 2024-03-09
	created, err := f.plans.RunDue(ctx, plan.ID)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if created != 8 {
		t.Errorf("created %d operations, want 8", created)
	}

	stored, err := f.plans.Get(ctx, plan.ID)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if want := day(t, "2024-03-10"); !stored.NextDate.Equal(want) {
		t.Errorf("next date = %s, want %s", stored.NextDate, want)
	}

	ops, err := f.ops.ListByAccount(ctx, f.admin.ID)
	if err != nil {
		t.Fatalf("list operations: %v", err)
	}
	if len(ops) != 8 {
		t.Errorf("account has %d operations, want 8", len(ops))
	}
	for _, op := range ops {
		if op.PlanID != plan.ID {
			t.Errorf("operation %s missing plan reference", op.ID)
		}
		if op.Finalized() {
			t.Errorf("planned operation %s must start unfinalized", op.ID)
		}
	}

	// Spawned operations count towards the final balance only.
	f.checkBalances(t, f.admin.ID, "0", "-40")

	// Nothing more is due.
	created, err = f.plans.RunDue(ctx, plan.ID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if created != 0 {
		t.Errorf("second run created %d operations, want 0", created)
	}
}

func TestMonthlyPlanUsesThirtyDays(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	ctx := context.Background()

	plan, spawned, err := f.plans.Create(ctx, f.admin.ID, CreatePlanInput{
		Amount:      dec(t, "-100"),
		Period:      models.PeriodMonth,
		PeriodCount: 1,
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	// NextDate defaulted to today, so creation spawns the first one.
	if len(spawned) != 1 {
		t.Fatalf("creation spawned %d operations, want 1", len(spawned))
	}

	// A month is exactly 30 days in this model.
	f.clock.Advance(30) // 2024-01-31
	created, err := f.plans.RunDue(ctx, plan.ID)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if created != 1 {
		t.Errorf("created %d operations, want exactly 1", created)
	}

	stored, err := f.plans.Get(ctx, plan.ID)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if want := day(t, "2024-03-01"); !stored.NextDate.Equal(want) {
		t.Errorf("next date = %s, want %s", stored.NextDate, want)
	}
}

func TestPlanValidation(t *testing.T) {
	f := newFixture(t, "2024-03-01")
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreatePlanInput
	}{
		{"unknown period", CreatePlanInput{Period: "X", PeriodCount: 1}},
		{"count too low", CreatePlanInput{Period: models.PeriodDay, PeriodCount: 0}},
		{"count too high", CreatePlanInput{Period: models.PeriodDay, PeriodCount: 21}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.plans.Create(ctx, f.admin.ID, tc.input)
			if !errors.Is(err, ErrInvalidPlan) {
				t.Errorf("err = %v, want ErrInvalidPlan", err)
			}
		})
	}
}

func TestFailedSpawnDoesNotAdvancePlan(t *testing.T) {
	f := newFixture(t, "2024-03-01")
	ctx := context.Background()

	plan, _, err := f.plans.Create(ctx, f.admin.ID, CreatePlanInput{
		Amount:      dec(t, "-5"),
		Period:      models.PeriodDay,
		PeriodCount: 1,
		NextDate:    day(t, "2024-03-02"),
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	f.clock.Advance(3) // 2024-03-04: three periods owed

	// First period fails to persist; the whole step must roll back.
	injected := errors.New("storage gone")
	f.store.FailCreateOperation = injected
	created, err := f.plans.RunDue(ctx, plan.ID)
	if !errors.Is(err, injected) {
		t.Fatalf("err = %v, want injected failure", err)
	}
	if created != 0 {
		t.Errorf("created %d operations before the failure, want 0", created)
	}

	stored, err := f.plans.Get(ctx, plan.ID)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if want := day(t, "2024-03-02"); !stored.NextDate.Equal(want) {
		t.Errorf("next date advanced to %s past a failed period, want %s", stored.NextDate, want)
	}
	f.checkBalances(t, f.admin.ID, "0", "0")

	// The next run retries the same period and catches up fully.
	created, err = f.plans.RunDue(ctx, plan.ID)
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if created != 3 {
		t.Errorf("retry created %d operations, want 3", created)
	}
	f.checkBalances(t, f.admin.ID, "0", "-15")
}

func TestSweepCatchesUpAllDuePlans(t *testing.T) {
	f := newFixture(t, "2024-03-01")
	ctx := context.Background()

	bob, err := f.homes.AddAccount(ctx, f.home.ID, "bob")
	if err != nil {
		t.Fatalf("add account: %v", err)
	}

	mk := func(accountID, amount string, period models.Period, next string) {
		t.Helper()
		if _, _, err := f.plans.Create(ctx, accountID, CreatePlanInput{
			Amount:      dec(t, amount),
			Period:      period,
			PeriodCount: 1,
			NextDate:    day(t, next),
		}); err != nil {
			t.Fatalf("create plan: %v", err)
		}
	}

	mk(f.admin.ID, "-2", models.PeriodDay, "2024-03-03")
	mk(bob.ID, "100", models.PeriodWeek, "2024-03-05")
	mk(bob.ID, "-9", models.PeriodYear, "2025-01-01") // not due

	f.clock.Advance(6) // 2024-03-07

	created, err := f.plans.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	// Daily plan owes 03-03..03-07 = 5, weekly owes 03-05 = 1.
	if created != 6 {
		t.Errorf("sweep created %d operations, want 6", created)
	}

	f.checkBalances(t, f.admin.ID, "0", "-10")
	f.checkBalances(t, bob.ID, "0", "100")

	// Sweeping again is a no-op.
	created, err = f.plans.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if created != 0 {
		t.Errorf("second sweep created %d operations, want 0", created)
	}
}

func TestDeletePlanKeepsOperations(t *testing.T) {
	f := newFixture(t, "2024-03-01")
	ctx := context.Background()

	plan, spawned, err := f.plans.Create(ctx, f.admin.ID, CreatePlanInput{
		Amount:      dec(t, "-5"),
		Period:      models.PeriodDay,
		PeriodCount: 1,
		// Due today: spawns immediately.
		NextDate: day(t, "2024-03-01"),
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if len(spawned) != 1 {
		t.Fatalf("spawned %d operations, want 1", len(spawned))
	}

	if err := f.plans.Delete(ctx, plan.ID); err != nil {
		t.Fatalf("delete plan: %v", err)
	}

	op, err := f.ops.Get(ctx, spawned[0].ID)
	if err != nil {
		t.Fatalf("get operation: %v", err)
	}
	if op.PlanID != "" {
		t.Errorf("operation still references deleted plan %q", op.PlanID)
	}
	f.checkBalances(t, f.admin.ID, "0", "-5")
}

func TestCalculateNextTable(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		period models.Period
		count  int
		want   time.Time
	}{
		{"one day", models.PeriodDay, 1, base.AddDate(0, 0, 1)},
		{"ten days", models.PeriodDay, 10, base.AddDate(0, 0, 10)},
		{"two weeks", models.PeriodWeek, 2, base.AddDate(0, 0, 14)},
		{"one month is 30 days", models.PeriodMonth, 1, base.AddDate(0, 0, 30)},
		{"one year is 365 days", models.PeriodYear, 1, base.AddDate(0, 0, 365)},
		{"three years", models.PeriodYear, 3, base.AddDate(0, 0, 3*365)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := &models.OperationPlan{Period: tc.period, PeriodCount: tc.count}
			got := plan.CalculateNext(base)
			if !got.Equal(tc.want) {
				t.Errorf("CalculateNext = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCalculateNextDefaultsToPlanDate(t *testing.T) {
	plan := &models.OperationPlan{
		Period:      models.PeriodWeek,
		PeriodCount: 1,
		NextDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	got := plan.CalculateNext(time.Time{})
	want := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("CalculateNext = %s, want %s", got, want)
	}
}
