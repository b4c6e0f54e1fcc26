// Package store persists the ledger entities. The Postgres implementation
// backs production; the memory implementation carries identical semantics
// for tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sbotor/budget-manager/models"
)

var (
	// ErrNotFound reports a missing entity id.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate reports a uniqueness violation, such as a label name
	// reused within its scope.
	ErrDuplicate = errors.New("duplicate")
)

// Store is the persistence boundary of the ledger engine.
//
// Transact runs fn with a store whose writes commit or roll back as a unit.
// Implementations serialize concurrent transactions touching the same rows;
// inside fn the passed store must be used instead of the receiver.
type Store interface {
	Transact(ctx context.Context, fn func(Store) error) error

	CreateHome(ctx context.Context, home *models.Home) error
	GetHome(ctx context.Context, id string) (*models.Home, error)
	ListHomeIDs(ctx context.Context) ([]string, error)
	UpdateHome(ctx context.Context, home *models.Home) error
	// DeleteHome removes the home and cascades to its accounts, labels,
	// operations and plans.
	DeleteHome(ctx context.Context, id string) error

	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context, homeID string) ([]models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
	UpdateAccountBalances(ctx context.Context, account *models.Account) error
	// DeleteAccount cascades to the account's operations, plans and
	// personal labels.
	DeleteAccount(ctx context.Context, id string) error

	// CreateLabel returns ErrDuplicate when the name is taken within the
	// label's scope.
	CreateLabel(ctx context.Context, label *models.Label) error
	// EnsureLabel upserts by scope and name, filling in the stored row.
	// Safe to call concurrently from multiple processes.
	EnsureLabel(ctx context.Context, label *models.Label) error
	GetLabel(ctx context.Context, id string) (*models.Label, error)
	GetGlobalLabel(ctx context.Context, name string) (*models.Label, error)
	// ListHomeLabels returns a home's labels; homeOnly excludes personal
	// ones.
	ListHomeLabels(ctx context.Context, homeID string, homeOnly bool) ([]models.Label, error)
	// ListAccountLabels returns an account's personal labels, plus its
	// home's labels when includeHome is set.
	ListAccountLabels(ctx context.Context, accountID string, includeHome bool) ([]models.Label, error)
	UpdateLabel(ctx context.Context, label *models.Label) error
	DeleteLabel(ctx context.Context, id string) error

	CreateOperation(ctx context.Context, op *models.Operation) error
	GetOperation(ctx context.Context, id string) (*models.Operation, error)
	// GetOperationBySource finds the incoming transaction leg linked to
	// the given outgoing operation.
	GetOperationBySource(ctx context.Context, sourceID string) (*models.Operation, error)
	ListOperations(ctx context.Context, accountID string) ([]models.Operation, error)
	UpdateOperation(ctx context.Context, op *models.Operation) error
	DeleteOperation(ctx context.Context, id string) error

	CreatePlan(ctx context.Context, plan *models.OperationPlan) error
	// GetPlan locks the plan row for the duration of the enclosing
	// transaction, serializing concurrent sweeps of the same plan.
	GetPlan(ctx context.Context, id string) (*models.OperationPlan, error)
	ListPlans(ctx context.Context, accountID string) ([]models.OperationPlan, error)
	ListDuePlanIDs(ctx context.Context, asOf time.Time) ([]string, error)
	UpdatePlan(ctx context.Context, plan *models.OperationPlan) error
	DeletePlan(ctx context.Context, id string) error
}
