package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sbotor/budget-manager/models"
)

// Memory is a map-backed Store with the same semantics as Postgres,
// including scoped label uniqueness, cascading deletes and transactional
// rollback. It backs the test suite.
type Memory struct {
	mu sync.Mutex
	s  *memState

	// FailCreateOperation makes the next CreateOperation call return the
	// given error. Used to exercise failure atomicity.
	FailCreateOperation error
}

type memState struct {
	homes      map[string]models.Home
	accounts   map[string]models.Account
	labels     map[string]models.Label
	operations map[string]models.Operation
	plans      map[string]models.OperationPlan
}

func NewMemory() *Memory {
	return &Memory{s: newMemState()}
}

func newMemState() *memState {
	return &memState{
		homes:      make(map[string]models.Home),
		accounts:   make(map[string]models.Account),
		labels:     make(map[string]models.Label),
		operations: make(map[string]models.Operation),
		plans:      make(map[string]models.OperationPlan),
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.homes {
		out.homes[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = cloneAccount(v)
	}
	for k, v := range s.labels {
		out.labels[k] = v
	}
	for k, v := range s.operations {
		out.operations[k] = cloneOperation(v)
	}
	for k, v := range s.plans {
		out.plans[k] = v
	}
	return out
}

func cloneAccount(a models.Account) models.Account {
	if a.ExtraPerms != nil {
		a.ExtraPerms = append([]models.Permission(nil), a.ExtraPerms...)
	}
	return a
}

func cloneOperation(o models.Operation) models.Operation {
	if o.FinalDate != nil {
		d := *o.FinalDate
		o.FinalDate = &d
	}
	return o
}

// Transact snapshots the state, runs fn on an unlocked view and restores
// the snapshot when fn fails.
func (m *Memory) Transact(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(&memTx{m: m}); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// memTx is the view handed to Transact callbacks. The enclosing Transact
// already holds the lock.
type memTx struct {
	m *Memory
}

func (t *memTx) Transact(ctx context.Context, fn func(Store) error) error {
	return fn(t)
}

// Locked wrappers.

func (m *Memory) CreateHome(ctx context.Context, home *models.Home) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createHome(home)
}

func (m *Memory) GetHome(ctx context.Context, id string) (*models.Home, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getHome(id)
}

func (m *Memory) ListHomeIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listHomeIDs()
}

func (m *Memory) UpdateHome(ctx context.Context, home *models.Home) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateHome(home)
}

func (m *Memory) DeleteHome(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteHome(id)
}

func (m *Memory) CreateAccount(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAccount(account)
}

func (m *Memory) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAccount(id)
}

func (m *Memory) ListAccounts(ctx context.Context, homeID string) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listAccounts(homeID)
}

func (m *Memory) UpdateAccount(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAccount(account)
}

func (m *Memory) UpdateAccountBalances(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAccountBalances(account)
}

func (m *Memory) DeleteAccount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAccount(id)
}

func (m *Memory) CreateLabel(ctx context.Context, label *models.Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLabel(label)
}

func (m *Memory) EnsureLabel(ctx context.Context, label *models.Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLabel(label)
}

func (m *Memory) GetLabel(ctx context.Context, id string) (*models.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLabel(id)
}

func (m *Memory) GetGlobalLabel(ctx context.Context, name string) (*models.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getGlobalLabel(name)
}

func (m *Memory) ListHomeLabels(ctx context.Context, homeID string, homeOnly bool) ([]models.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listHomeLabels(homeID, homeOnly)
}

func (m *Memory) ListAccountLabels(ctx context.Context, accountID string, includeHome bool) ([]models.Label, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listAccountLabels(accountID, includeHome)
}

func (m *Memory) UpdateLabel(ctx context.Context, label *models.Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLabel(label)
}

func (m *Memory) DeleteLabel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLabel(id)
}

func (m *Memory) CreateOperation(ctx context.Context, op *models.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createOperation(op)
}

func (m *Memory) GetOperation(ctx context.Context, id string) (*models.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOperation(id)
}

func (m *Memory) GetOperationBySource(ctx context.Context, sourceID string) (*models.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOperationBySource(sourceID)
}

func (m *Memory) ListOperations(ctx context.Context, accountID string) ([]models.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listOperations(accountID)
}

func (m *Memory) UpdateOperation(ctx context.Context, op *models.Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateOperation(op)
}

func (m *Memory) DeleteOperation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteOperation(id)
}

func (m *Memory) CreatePlan(ctx context.Context, plan *models.OperationPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPlan(plan)
}

func (m *Memory) GetPlan(ctx context.Context, id string) (*models.OperationPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getPlan(id)
}

func (m *Memory) ListPlans(ctx context.Context, accountID string) ([]models.OperationPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listPlans(accountID)
}

func (m *Memory) ListDuePlanIDs(ctx context.Context, asOf time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listDuePlanIDs(asOf)
}

func (m *Memory) UpdatePlan(ctx context.Context, plan *models.OperationPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePlan(plan)
}

func (m *Memory) DeletePlan(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletePlan(id)
}

// Transaction-view delegates.

func (t *memTx) CreateHome(ctx context.Context, home *models.Home) error {
	return t.m.createHome(home)
}
func (t *memTx) GetHome(ctx context.Context, id string) (*models.Home, error) {
	return t.m.getHome(id)
}
func (t *memTx) ListHomeIDs(ctx context.Context) ([]string, error) {
	return t.m.listHomeIDs()
}
func (t *memTx) UpdateHome(ctx context.Context, home *models.Home) error {
	return t.m.updateHome(home)
}
func (t *memTx) DeleteHome(ctx context.Context, id string) error {
	return t.m.deleteHome(id)
}
func (t *memTx) CreateAccount(ctx context.Context, account *models.Account) error {
	return t.m.createAccount(account)
}
func (t *memTx) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return t.m.getAccount(id)
}
func (t *memTx) ListAccounts(ctx context.Context, homeID string) ([]models.Account, error) {
	return t.m.listAccounts(homeID)
}
func (t *memTx) UpdateAccount(ctx context.Context, account *models.Account) error {
	return t.m.updateAccount(account)
}
func (t *memTx) UpdateAccountBalances(ctx context.Context, account *models.Account) error {
	return t.m.updateAccountBalances(account)
}
func (t *memTx) DeleteAccount(ctx context.Context, id string) error {
	return t.m.deleteAccount(id)
}
func (t *memTx) CreateLabel(ctx context.Context, label *models.Label) error {
	return t.m.createLabel(label)
}
func (t *memTx) EnsureLabel(ctx context.Context, label *models.Label) error {
	return t.m.ensureLabel(label)
}
func (t *memTx) GetLabel(ctx context.Context, id string) (*models.Label, error) {
	return t.m.getLabel(id)
}
func (t *memTx) GetGlobalLabel(ctx context.Context, name string) (*models.Label, error) {
	return t.m.getGlobalLabel(name)
}
func (t *memTx) ListHomeLabels(ctx context.Context, homeID string, homeOnly bool) ([]models.Label, error) {
	return t.m.listHomeLabels(homeID, homeOnly)
}
func (t *memTx) ListAccountLabels(ctx context.Context, accountID string, includeHome bool) ([]models.Label, error) {
	return t.m.listAccountLabels(accountID, includeHome)
}
func (t *memTx) UpdateLabel(ctx context.Context, label *models.Label) error {
	return t.m.updateLabel(label)
}
func (t *memTx) DeleteLabel(ctx context.Context, id string) error {
	return t.m.deleteLabel(id)
}
func (t *memTx) CreateOperation(ctx context.Context, op *models.Operation) error {
	return t.m.createOperation(op)
}
func (t *memTx) GetOperation(ctx context.Context, id string) (*models.Operation, error) {
	return t.m.getOperation(id)
}
func (t *memTx) GetOperationBySource(ctx context.Context, sourceID string) (*models.Operation, error) {
	return t.m.getOperationBySource(sourceID)
}
func (t *memTx) ListOperations(ctx context.Context, accountID string) ([]models.Operation, error) {
	return t.m.listOperations(accountID)
}
func (t *memTx) UpdateOperation(ctx context.Context, op *models.Operation) error {
	return t.m.updateOperation(op)
}
func (t *memTx) DeleteOperation(ctx context.Context, id string) error {
	return t.m.deleteOperation(id)
}
func (t *memTx) CreatePlan(ctx context.Context, plan *models.OperationPlan) error {
	return t.m.createPlan(plan)
}
func (t *memTx) GetPlan(ctx context.Context, id string) (*models.OperationPlan, error) {
	return t.m.getPlan(id)
}
func (t *memTx) ListPlans(ctx context.Context, accountID string) ([]models.OperationPlan, error) {
	return t.m.listPlans(accountID)
}
func (t *memTx) ListDuePlanIDs(ctx context.Context, asOf time.Time) ([]string, error) {
	return t.m.listDuePlanIDs(asOf)
}
func (t *memTx) UpdatePlan(ctx context.Context, plan *models.OperationPlan) error {
	return t.m.updatePlan(plan)
}
func (t *memTx) DeletePlan(ctx context.Context, id string) error {
	return t.m.deletePlan(id)
}

// State methods. Callers hold the lock.

func (m *Memory) createHome(home *models.Home) error {
	m.s.homes[home.ID] = *home
	return nil
}

func (m *Memory) getHome(id string) (*models.Home, error) {
	home, ok := m.s.homes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &home, nil
}

func (m *Memory) listHomeIDs() ([]string, error) {
	type entry struct {
		id      string
		created time.Time
	}
	entries := make([]entry, 0, len(m.s.homes))
	for id, home := range m.s.homes {
		entries = append(entries, entry{id, home.CreatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].created.Equal(entries[j].created) {
			return entries[i].id < entries[j].id
		}
		return entries[i].created.Before(entries[j].created)
	})
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.id)
	}
	return ids, nil
}

func (m *Memory) updateHome(home *models.Home) error {
	if _, ok := m.s.homes[home.ID]; !ok {
		return ErrNotFound
	}
	m.s.homes[home.ID] = *home
	return nil
}

func (m *Memory) deleteHome(id string) error {
	if _, ok := m.s.homes[id]; !ok {
		return ErrNotFound
	}
	for accID, acc := range m.s.accounts {
		if acc.HomeID == id {
			m.deleteAccount(accID)
		}
	}
	for labelID, label := range m.s.labels {
		if label.HomeID == id {
			delete(m.s.labels, labelID)
		}
	}
	delete(m.s.homes, id)
	return nil
}

func (m *Memory) createAccount(account *models.Account) error {
	m.s.accounts[account.ID] = cloneAccount(*account)
	return nil
}

func (m *Memory) getAccount(id string) (*models.Account, error) {
	account, ok := m.s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	account = cloneAccount(account)
	return &account, nil
}

func (m *Memory) listAccounts(homeID string) ([]models.Account, error) {
	var out []models.Account
	for _, acc := range m.s.accounts {
		if acc.HomeID == homeID {
			out = append(out, cloneAccount(acc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) updateAccount(account *models.Account) error {
	stored, ok := m.s.accounts[account.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Name = account.Name
	stored.Role = account.Role
	stored.ExtraPerms = append([]models.Permission(nil), account.ExtraPerms...)
	m.s.accounts[account.ID] = stored
	return nil
}

func (m *Memory) updateAccountBalances(account *models.Account) error {
	stored, ok := m.s.accounts[account.ID]
	if !ok {
		return ErrNotFound
	}
	stored.CurrentAmount = account.CurrentAmount
	stored.FinalAmount = account.FinalAmount
	m.s.accounts[account.ID] = stored
	return nil
}

func (m *Memory) deleteAccount(id string) error {
	if _, ok := m.s.accounts[id]; !ok {
		return ErrNotFound
	}
	for opID, op := range m.s.operations {
		if op.AccountID == id {
			delete(m.s.operations, opID)
		}
	}
	// Orphaned transaction references are nulled, as SET NULL would.
	for opID, op := range m.s.operations {
		if op.SourceID != "" {
			if _, ok := m.s.operations[op.SourceID]; !ok {
				op.SourceID = ""
				m.s.operations[opID] = op
			}
		}
	}
	for planID, plan := range m.s.plans {
		if plan.AccountID == id {
			delete(m.s.plans, planID)
		}
	}
	for labelID, label := range m.s.labels {
		if label.AccountID == id {
			delete(m.s.labels, labelID)
		}
	}
	delete(m.s.accounts, id)
	return nil
}

func sameScope(a, b models.Label) bool {
	return a.HomeID == b.HomeID && a.AccountID == b.AccountID
}

func (m *Memory) findLabel(label models.Label) (models.Label, bool) {
	for _, stored := range m.s.labels {
		if stored.Name == label.Name && sameScope(stored, label) {
			return stored, true
		}
	}
	return models.Label{}, false
}

func (m *Memory) createLabel(label *models.Label) error {
	if _, exists := m.findLabel(*label); exists {
		return ErrDuplicate
	}
	m.s.labels[label.ID] = *label
	return nil
}

func (m *Memory) ensureLabel(label *models.Label) error {
	if stored, exists := m.findLabel(*label); exists {
		*label = stored
		return nil
	}
	m.s.labels[label.ID] = *label
	return nil
}

func (m *Memory) getLabel(id string) (*models.Label, error) {
	label, ok := m.s.labels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &label, nil
}

func (m *Memory) getGlobalLabel(name string) (*models.Label, error) {
	for _, label := range m.s.labels {
		if label.Name == name && label.IsGlobal() {
			stored := label
			return &stored, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) listHomeLabels(homeID string, homeOnly bool) ([]models.Label, error) {
	var out []models.Label
	for _, label := range m.s.labels {
		if label.HomeID != homeID {
			continue
		}
		if homeOnly && label.AccountID != "" {
			continue
		}
		out = append(out, label)
	}
	sortLabels(out)
	return out, nil
}

func (m *Memory) listAccountLabels(accountID string, includeHome bool) ([]models.Label, error) {
	account, ok := m.s.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}

	var out []models.Label
	for _, label := range m.s.labels {
		if label.AccountID == accountID {
			out = append(out, label)
			continue
		}
		if includeHome && label.HomeID == account.HomeID && label.AccountID == "" {
			out = append(out, label)
		}
	}
	sortLabels(out)
	return out, nil
}

func sortLabels(labels []models.Label) {
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
}

func (m *Memory) updateLabel(label *models.Label) error {
	stored, ok := m.s.labels[label.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Name != label.Name {
		if _, exists := m.findLabel(*label); exists {
			return ErrDuplicate
		}
	}
	stored.Name = label.Name
	m.s.labels[label.ID] = stored
	return nil
}

func (m *Memory) deleteLabel(id string) error {
	if _, ok := m.s.labels[id]; !ok {
		return ErrNotFound
	}
	for opID, op := range m.s.operations {
		if op.LabelID == id {
			op.LabelID = ""
			m.s.operations[opID] = op
		}
	}
	for planID, plan := range m.s.plans {
		if plan.LabelID == id {
			plan.LabelID = ""
			m.s.plans[planID] = plan
		}
	}
	delete(m.s.labels, id)
	return nil
}

func (m *Memory) createOperation(op *models.Operation) error {
	if m.FailCreateOperation != nil {
		err := m.FailCreateOperation
		m.FailCreateOperation = nil
		return err
	}
	m.s.operations[op.ID] = cloneOperation(*op)
	return nil
}

func (m *Memory) getOperation(id string) (*models.Operation, error) {
	op, ok := m.s.operations[id]
	if !ok {
		return nil, ErrNotFound
	}
	op = cloneOperation(op)
	return &op, nil
}

func (m *Memory) getOperationBySource(sourceID string) (*models.Operation, error) {
	for _, op := range m.s.operations {
		if op.SourceID == sourceID {
			op = cloneOperation(op)
			return &op, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) listOperations(accountID string) ([]models.Operation, error) {
	var out []models.Operation
	for _, op := range m.s.operations {
		if op.AccountID == accountID {
			out = append(out, cloneOperation(op))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreationDate.Equal(out[j].CreationDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreationDate.After(out[j].CreationDate)
	})
	return out, nil
}

func (m *Memory) updateOperation(op *models.Operation) error {
	if _, ok := m.s.operations[op.ID]; !ok {
		return ErrNotFound
	}
	m.s.operations[op.ID] = cloneOperation(*op)
	return nil
}

func (m *Memory) deleteOperation(id string) error {
	if _, ok := m.s.operations[id]; !ok {
		return ErrNotFound
	}
	for otherID, other := range m.s.operations {
		if other.SourceID == id {
			other.SourceID = ""
			m.s.operations[otherID] = other
		}
	}
	delete(m.s.operations, id)
	return nil
}

func (m *Memory) createPlan(plan *models.OperationPlan) error {
	m.s.plans[plan.ID] = *plan
	return nil
}

func (m *Memory) getPlan(id string) (*models.OperationPlan, error) {
	plan, ok := m.s.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &plan, nil
}

func (m *Memory) listPlans(accountID string) ([]models.OperationPlan, error) {
	var out []models.OperationPlan
	for _, plan := range m.s.plans {
		if plan.AccountID == accountID {
			out = append(out, plan)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextDate.Equal(out[j].NextDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextDate.Before(out[j].NextDate)
	})
	return out, nil
}

func (m *Memory) listDuePlanIDs(asOf time.Time) ([]string, error) {
	day := models.DateOnly(asOf)
	var due []models.OperationPlan
	for _, plan := range m.s.plans {
		if !plan.NextDate.After(day) {
			due = append(due, plan)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextDate.Equal(due[j].NextDate) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextDate.Before(due[j].NextDate)
	})
	ids := make([]string, 0, len(due))
	for _, plan := range due {
		ids = append(ids, plan.ID)
	}
	return ids, nil
}

func (m *Memory) updatePlan(plan *models.OperationPlan) error {
	if _, ok := m.s.plans[plan.ID]; !ok {
		return ErrNotFound
	}
	m.s.plans[plan.ID] = *plan
	return nil
}

func (m *Memory) deletePlan(id string) error {
	if _, ok := m.s.plans[id]; !ok {
		return ErrNotFound
	}
	for opID, op := range m.s.operations {
		if op.PlanID == id {
			op.PlanID = ""
			m.s.operations[opID] = op
		}
	}
	delete(m.s.plans, id)
	return nil
}
