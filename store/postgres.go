package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sbotor/budget-manager/models"
	"github.com/sbotor/budget-manager/utils"
)

// Postgres implements Store on top of database/sql with lib/pq.
type Postgres struct {
	db *sql.DB
	tx *sql.Tx
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (p *Postgres) q() querier {
	if p.tx != nil {
		return p.tx
	}
	return p.db
}

// Transact starts a transaction and hands fn a transaction-bound store.
// Nested calls reuse the enclosing transaction.
func (p *Postgres) Transact(ctx context.Context, fn func(Store) error) error {
	if p.tx != nil {
		return fn(p)
	}
	return utils.WithTransaction(p.db, func(tx *sql.Tx) error {
		return fn(&Postgres{db: p.db, tx: tx})
	})
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fromNullStr(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// Homes

func (p *Postgres) CreateHome(ctx context.Context, home *models.Home) error {
	query := `
		INSERT INTO homes (id, name, currency, admin_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := p.q().ExecContext(ctx, query,
		home.ID, home.Name, home.Currency, nullStr(home.AdminID),
		home.CreatedAt, home.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert home: %w", err)
	}
	return nil
}

func (p *Postgres) GetHome(ctx context.Context, id string) (*models.Home, error) {
	query := `
		SELECT id, name, currency, admin_id, created_at, updated_at
		FROM homes
		WHERE id = $1
	`
	var home models.Home
	var adminID sql.NullString
	err := p.q().QueryRowContext(ctx, query, id).Scan(
		&home.ID, &home.Name, &home.Currency, &adminID,
		&home.CreatedAt, &home.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	home.AdminID = fromNullStr(adminID)
	return &home, nil
}

func (p *Postgres) ListHomeIDs(ctx context.Context) ([]string, error) {
	rows, err := p.q().QueryContext(ctx, `SELECT id FROM homes ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) UpdateHome(ctx context.Context, home *models.Home) error {
	query := `
		UPDATE homes
		SET name = $1, currency = $2, admin_id = $3, updated_at = NOW()
		WHERE id = $4
	`
	return p.execOne(ctx, query, home.Name, home.Currency, nullStr(home.AdminID), home.ID)
}

func (p *Postgres) DeleteHome(ctx context.Context, id string) error {
	// Accounts, labels, operations and plans go with the home via
	// ON DELETE CASCADE.
	return p.execOne(ctx, `DELETE FROM homes WHERE id = $1`, id)
}

// Accounts

func (p *Postgres) CreateAccount(ctx context.Context, account *models.Account) error {
	perms, err := marshalPerms(account.ExtraPerms)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (id, home_id, name, role, extra_perms,
			current_amount, final_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = p.q().ExecContext(ctx, query,
		account.ID, account.HomeID, account.Name, string(account.Role), perms,
		account.CurrentAmount, account.FinalAmount,
		account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

const accountColumns = `id, home_id, name, role, extra_perms,
	current_amount, final_amount, created_at, updated_at`

func (p *Postgres) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	row := p.q().QueryRowContext(ctx, query, id)
	return scanAccount(row)
}

func (p *Postgres) ListAccounts(ctx context.Context, homeID string) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE home_id = $1 ORDER BY created_at`
	rows, err := p.q().QueryContext(ctx, query, homeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var role string
	var perms []byte
	err := row.Scan(&account.ID, &account.HomeID, &account.Name, &role, &perms,
		&account.CurrentAmount, &account.FinalAmount,
		&account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	account.Role = models.Role(role)
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &account.ExtraPerms); err != nil {
			return nil, fmt.Errorf("decode extra perms: %w", err)
		}
	}
	return &account, nil
}

func marshalPerms(perms []models.Permission) ([]byte, error) {
	if perms == nil {
		perms = []models.Permission{}
	}
	out, err := json.Marshal(perms)
	if err != nil {
		return nil, fmt.Errorf("encode extra perms: %w", err)
	}
	return out, nil
}

func (p *Postgres) UpdateAccount(ctx context.Context, account *models.Account) error {
	perms, err := marshalPerms(account.ExtraPerms)
	if err != nil {
		return err
	}

	query := `
		UPDATE accounts
		SET name = $1, role = $2, extra_perms = $3, updated_at = NOW()
		WHERE id = $4
	`
	return p.execOne(ctx, query, account.Name, string(account.Role), perms, account.ID)
}

func (p *Postgres) UpdateAccountBalances(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE accounts
		SET current_amount = $1, final_amount = $2, updated_at = NOW()
		WHERE id = $3
	`
	return p.execOne(ctx, query, account.CurrentAmount, account.FinalAmount, account.ID)
}

func (p *Postgres) DeleteAccount(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM accounts WHERE id = $1`, id)
}

// Labels

func (p *Postgres) CreateLabel(ctx context.Context, label *models.Label) error {
	query := `
		INSERT INTO labels (id, name, home_id, account_id, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := p.q().ExecContext(ctx, query,
		label.ID, label.Name, nullStr(label.HomeID), nullStr(label.AccountID),
		label.IsDefault, label.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert label: %w", err)
	}
	return nil
}

// EnsureLabel upserts the label by scope and name. The partial unique
// indexes arbitrate concurrent callers, so no in-process guard is needed.
func (p *Postgres) EnsureLabel(ctx context.Context, label *models.Label) error {
	query := `
		INSERT INTO labels (id, name, home_id, account_id, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	_, err := p.q().ExecContext(ctx, query,
		label.ID, label.Name, nullStr(label.HomeID), nullStr(label.AccountID),
		label.IsDefault, label.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert label: %w", err)
	}

	// Read the stored row back; a concurrent insert may have won.
	fetch := `
		SELECT id, name, home_id, account_id, is_default, created_at
		FROM labels
		WHERE name = $1
			AND home_id IS NOT DISTINCT FROM $2
			AND account_id IS NOT DISTINCT FROM $3
	`
	row := p.q().QueryRowContext(ctx, fetch,
		label.Name, nullStr(label.HomeID), nullStr(label.AccountID))
	stored, err := scanLabel(row)
	if err != nil {
		return err
	}
	*label = *stored
	return nil
}

func (p *Postgres) GetLabel(ctx context.Context, id string) (*models.Label, error) {
	query := `
		SELECT id, name, home_id, account_id, is_default, created_at
		FROM labels
		WHERE id = $1
	`
	return scanLabel(p.q().QueryRowContext(ctx, query, id))
}

func (p *Postgres) GetGlobalLabel(ctx context.Context, name string) (*models.Label, error) {
	query := `
		SELECT id, name, home_id, account_id, is_default, created_at
		FROM labels
		WHERE name = $1 AND home_id IS NULL AND account_id IS NULL
	`
	return scanLabel(p.q().QueryRowContext(ctx, query, name))
}

func scanLabel(row rowScanner) (*models.Label, error) {
	var label models.Label
	var homeID, accountID sql.NullString
	err := row.Scan(&label.ID, &label.Name, &homeID, &accountID,
		&label.IsDefault, &label.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	label.HomeID = fromNullStr(homeID)
	label.AccountID = fromNullStr(accountID)
	return &label, nil
}

func (p *Postgres) ListHomeLabels(ctx context.Context, homeID string, homeOnly bool) ([]models.Label, error) {
	query := `
		SELECT id, name, home_id, account_id, is_default, created_at
		FROM labels
		WHERE home_id = $1
	`
	if homeOnly {
		query += ` AND account_id IS NULL`
	}
	query += ` ORDER BY name`
	return p.listLabels(ctx, query, homeID)
}

func (p *Postgres) ListAccountLabels(ctx context.Context, accountID string, includeHome bool) ([]models.Label, error) {
	if !includeHome {
		query := `
			SELECT id, name, home_id, account_id, is_default, created_at
			FROM labels
			WHERE account_id = $1
			ORDER BY name
		`
		return p.listLabels(ctx, query, accountID)
	}

	query := `
		SELECT l.id, l.name, l.home_id, l.account_id, l.is_default, l.created_at
		FROM labels l
		JOIN accounts a ON a.id = $1
		WHERE l.account_id = $1
			OR (l.home_id = a.home_id AND l.account_id IS NULL)
		ORDER BY l.name
	`
	return p.listLabels(ctx, query, accountID)
}

func (p *Postgres) listLabels(ctx context.Context, query string, args ...interface{}) ([]models.Label, error) {
	rows, err := p.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []models.Label
	for rows.Next() {
		label, err := scanLabel(rows)
		if err != nil {
			return nil, err
		}
		labels = append(labels, *label)
	}
	return labels, rows.Err()
}

func (p *Postgres) UpdateLabel(ctx context.Context, label *models.Label) error {
	query := `UPDATE labels SET name = $1 WHERE id = $2`
	err := p.execOne(ctx, query, label.Name, label.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *Postgres) DeleteLabel(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM labels WHERE id = $1`, id)
}

// Operations

func (p *Postgres) CreateOperation(ctx context.Context, op *models.Operation) error {
	query := `
		INSERT INTO operations (id, account_id, label_id, amount, description,
			creation_date, final_date, plan_id, source_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := p.q().ExecContext(ctx, query,
		op.ID, op.AccountID, nullStr(op.LabelID), op.Amount,
		utils.EncryptField(op.Description),
		op.CreationDate, op.FinalDate, nullStr(op.PlanID), nullStr(op.SourceID))
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

const operationColumns = `id, account_id, label_id, amount, description,
	creation_date, final_date, plan_id, source_id`

func (p *Postgres) GetOperation(ctx context.Context, id string) (*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1`
	return scanOperation(p.q().QueryRowContext(ctx, query, id))
}

func (p *Postgres) GetOperationBySource(ctx context.Context, sourceID string) (*models.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE source_id = $1`
	return scanOperation(p.q().QueryRowContext(ctx, query, sourceID))
}

func (p *Postgres) ListOperations(ctx context.Context, accountID string) ([]models.Operation, error) {
	query := `SELECT ` + operationColumns + `
		FROM operations
		WHERE account_id = $1
		ORDER BY creation_date DESC, id
	`
	rows, err := p.q().QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

func scanOperation(row rowScanner) (*models.Operation, error) {
	var op models.Operation
	var labelID, description, planID, sourceID sql.NullString
	var finalDate sql.NullTime
	err := row.Scan(&op.ID, &op.AccountID, &labelID, &op.Amount, &description,
		&op.CreationDate, &finalDate, &planID, &sourceID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	op.LabelID = fromNullStr(labelID)
	op.Description = utils.DecryptField(fromNullStr(description))
	op.PlanID = fromNullStr(planID)
	op.SourceID = fromNullStr(sourceID)
	if finalDate.Valid {
		d := models.DateOnly(finalDate.Time)
		op.FinalDate = &d
	}
	op.CreationDate = models.DateOnly(op.CreationDate)
	return &op, nil
}

func (p *Postgres) UpdateOperation(ctx context.Context, op *models.Operation) error {
	query := `
		UPDATE operations
		SET label_id = $1, amount = $2, description = $3, final_date = $4, source_id = $5
		WHERE id = $6
	`
	return p.execOne(ctx, query,
		nullStr(op.LabelID), op.Amount, utils.EncryptField(op.Description),
		op.FinalDate, nullStr(op.SourceID), op.ID)
}

func (p *Postgres) DeleteOperation(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM operations WHERE id = $1`, id)
}

// Plans

func (p *Postgres) CreatePlan(ctx context.Context, plan *models.OperationPlan) error {
	query := `
		INSERT INTO operation_plans (id, account_id, label_id, amount, description,
			period, period_count, next_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := p.q().ExecContext(ctx, query,
		plan.ID, plan.AccountID, nullStr(plan.LabelID), plan.Amount,
		utils.EncryptField(plan.Description),
		string(plan.Period), plan.PeriodCount, plan.NextDate, plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

const planColumns = `id, account_id, label_id, amount, description,
	period, period_count, next_date, created_at`

// GetPlan locks the row when called inside a transaction so that two sweeps
// cannot advance the same plan concurrently.
func (p *Postgres) GetPlan(ctx context.Context, id string) (*models.OperationPlan, error) {
	query := `SELECT ` + planColumns + ` FROM operation_plans WHERE id = $1`
	if p.tx != nil {
		query += ` FOR UPDATE`
	}
	return scanPlan(p.q().QueryRowContext(ctx, query, id))
}

func (p *Postgres) ListPlans(ctx context.Context, accountID string) ([]models.OperationPlan, error) {
	query := `SELECT ` + planColumns + `
		FROM operation_plans
		WHERE account_id = $1
		ORDER BY next_date, id
	`
	rows, err := p.q().QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []models.OperationPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

func (p *Postgres) ListDuePlanIDs(ctx context.Context, asOf time.Time) ([]string, error) {
	query := `SELECT id FROM operation_plans WHERE next_date <= $1 ORDER BY next_date, id`
	rows, err := p.q().QueryContext(ctx, query, models.DateOnly(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanPlan(row rowScanner) (*models.OperationPlan, error) {
	var plan models.OperationPlan
	var labelID, description sql.NullString
	var period string
	err := row.Scan(&plan.ID, &plan.AccountID, &labelID, &plan.Amount, &description,
		&period, &plan.PeriodCount, &plan.NextDate, &plan.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	plan.LabelID = fromNullStr(labelID)
	plan.Description = utils.DecryptField(fromNullStr(description))
	plan.Period = models.Period(period)
	plan.NextDate = models.DateOnly(plan.NextDate)
	return &plan, nil
}

func (p *Postgres) UpdatePlan(ctx context.Context, plan *models.OperationPlan) error {
	query := `
		UPDATE operation_plans
		SET label_id = $1, amount = $2, description = $3,
			period = $4, period_count = $5, next_date = $6
		WHERE id = $7
	`
	return p.execOne(ctx, query,
		nullStr(plan.LabelID), plan.Amount, utils.EncryptField(plan.Description),
		string(plan.Period), plan.PeriodCount, plan.NextDate, plan.ID)
}

func (p *Postgres) DeletePlan(ctx context.Context, id string) error {
	return p.execOne(ctx, `DELETE FROM operation_plans WHERE id = $1`, id)
}

// execOne runs a statement expected to touch exactly one row and maps a
// zero-row result to ErrNotFound.
func (p *Postgres) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := p.q().ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
