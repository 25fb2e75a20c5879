package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// ---- users ----

const getUser = `SELECT user_id, name, email, monthly_budget, created_at, updated_at
FROM users WHERE user_id = ?`

func (q *Queries) GetUser(ctx context.Context, userID string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUser, userID)
	var i User
	err := row.Scan(&i.UserID, &i.Name, &i.Email, &i.MonthlyBudget, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const upsertUser = `INSERT INTO users (user_id, name, email, monthly_budget, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    name = excluded.name,
    email = excluded.email,
    monthly_budget = excluded.monthly_budget,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertUser(ctx context.Context, arg User) error {
	_, err := q.db.ExecContext(ctx, upsertUser,
		arg.UserID, arg.Name, arg.Email, arg.MonthlyBudget, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const listUserIDs = `SELECT user_id FROM users ORDER BY user_id`

func (q *Queries) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listUserIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	return items, rows.Err()
}

// ---- transactions ----

const transactionColumns = `transaction_id, user_id, type, amount, category_id, date, note, receipt_url, updated_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (Transaction, error) {
	var i Transaction
	err := row.Scan(&i.TransactionID, &i.UserID, &i.Type, &i.Amount, &i.CategoryID,
		&i.Date, &i.Note, &i.ReceiptUrl, &i.UpdatedAt)
	return i, err
}

const createTransaction = `INSERT INTO transactions (user_id, type, amount, category_id, date, note, receipt_url, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	UserID     string
	Type       string
	Amount     string
	CategoryID int64
	Date       int64
	Note       string
	ReceiptUrl sql.NullString
	UpdatedAt  int64
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.UserID, arg.Type, arg.Amount, arg.CategoryID, arg.Date, arg.Note, arg.ReceiptUrl, arg.UpdatedAt)
	return scanTransaction(row)
}

// Restores by id but never takes over a row that belongs to another user.
const upsertTransaction = `INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(transaction_id) DO UPDATE SET
    type = excluded.type,
    amount = excluded.amount,
    category_id = excluded.category_id,
    date = excluded.date,
    note = excluded.note,
    receipt_url = excluded.receipt_url,
    updated_at = excluded.updated_at
WHERE transactions.user_id = excluded.user_id`

func (q *Queries) UpsertTransaction(ctx context.Context, arg Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, upsertTransaction,
		arg.TransactionID, arg.UserID, arg.Type, arg.Amount, arg.CategoryID,
		arg.Date, arg.Note, arg.ReceiptUrl, arg.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Same as upsertTransaction but leaves rows edited locally after the cutoff alone.
const upsertTransactionIfNotNewer = upsertTransaction + `
    AND transactions.updated_at <= ?`

func (q *Queries) UpsertTransactionIfNotNewer(ctx context.Context, arg Transaction, cutoff int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, upsertTransactionIfNotNewer,
		arg.TransactionID, arg.UserID, arg.Type, arg.Amount, arg.CategoryID,
		arg.Date, arg.Note, arg.ReceiptUrl, arg.UpdatedAt, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const listTransactionsByUser = `SELECT ` + transactionColumns + `
FROM transactions WHERE user_id = ?
ORDER BY date DESC, transaction_id DESC`

func (q *Queries) ListTransactionsByUser(ctx context.Context, userID string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deleteTransaction = `DELETE FROM transactions WHERE transaction_id = ? AND user_id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id int64, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- categories ----

const categoryColumns = `category_id, user_id, name, type, color`

func scanCategory(row interface{ Scan(...interface{}) error }) (Category, error) {
	var i Category
	err := row.Scan(&i.CategoryID, &i.UserID, &i.Name, &i.Type, &i.Color)
	return i, err
}

const createCategory = `INSERT INTO categories (user_id, name, type, color)
VALUES (?, ?, ?, ?)
RETURNING ` + categoryColumns

type CreateCategoryParams struct {
	UserID sql.NullString
	Name   string
	Type   string
	Color  string
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx, createCategory, arg.UserID, arg.Name, arg.Type, arg.Color))
}

const listCategoriesForUser = `SELECT ` + categoryColumns + `
FROM categories WHERE user_id = ? OR user_id IS NULL
ORDER BY type DESC, category_id`

func (q *Queries) ListCategoriesForUser(ctx context.Context, userID string) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategoriesForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		i, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countSharedCategories = `SELECT COUNT(*) FROM categories WHERE user_id IS NULL`

func (q *Queries) CountSharedCategories(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countSharedCategories).Scan(&n)
	return n, err
}

// ---- savings goals ----

const goalColumns = `goal_id, user_id, title, target_amount, saved_amount, deadline`

func scanGoal(row interface{ Scan(...interface{}) error }) (SavingsGoal, error) {
	var i SavingsGoal
	err := row.Scan(&i.GoalID, &i.UserID, &i.Title, &i.TargetAmount, &i.SavedAmount, &i.Deadline)
	return i, err
}

const createGoal = `INSERT INTO savings_goals (user_id, title, target_amount, saved_amount, deadline)
VALUES (?, ?, ?, ?, ?)
RETURNING ` + goalColumns

func (q *Queries) CreateGoal(ctx context.Context, arg SavingsGoal) (SavingsGoal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, createGoal,
		arg.UserID, arg.Title, arg.TargetAmount, arg.SavedAmount, arg.Deadline))
}

const getGoal = `SELECT ` + goalColumns + ` FROM savings_goals WHERE goal_id = ? AND user_id = ?`

func (q *Queries) GetGoal(ctx context.Context, id int64, userID string) (SavingsGoal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, getGoal, id, userID))
}

const listGoalsByUser = `SELECT ` + goalColumns + ` FROM savings_goals WHERE user_id = ? ORDER BY deadline, goal_id`

func (q *Queries) ListGoalsByUser(ctx context.Context, userID string) ([]SavingsGoal, error) {
	rows, err := q.db.QueryContext(ctx, listGoalsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SavingsGoal
	for rows.Next() {
		i, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const updateGoalSaved = `UPDATE savings_goals SET saved_amount = ? WHERE goal_id = ? AND user_id = ?`

func (q *Queries) UpdateGoalSaved(ctx context.Context, saved string, id int64, userID string) error {
	_, err := q.db.ExecContext(ctx, updateGoalSaved, saved, id, userID)
	return err
}

const deleteGoal = `DELETE FROM savings_goals WHERE goal_id = ? AND user_id = ?`

func (q *Queries) DeleteGoal(ctx context.Context, id int64, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteGoal, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- budget alerts ----

const alertColumns = `alert_id, user_id, category_id, limit_amount, threshold_percentage`

func scanAlert(row interface{ Scan(...interface{}) error }) (BudgetAlert, error) {
	var i BudgetAlert
	err := row.Scan(&i.AlertID, &i.UserID, &i.CategoryID, &i.LimitAmount, &i.ThresholdPercentage)
	return i, err
}

const upsertAlert = `INSERT INTO budget_alerts (user_id, category_id, limit_amount, threshold_percentage)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, category_id) DO UPDATE SET
    limit_amount = excluded.limit_amount,
    threshold_percentage = excluded.threshold_percentage
RETURNING ` + alertColumns

func (q *Queries) UpsertAlert(ctx context.Context, arg BudgetAlert) (BudgetAlert, error) {
	return scanAlert(q.db.QueryRowContext(ctx, upsertAlert,
		arg.UserID, arg.CategoryID, arg.LimitAmount, arg.ThresholdPercentage))
}

const listAlertsByUser = `SELECT ` + alertColumns + ` FROM budget_alerts WHERE user_id = ? ORDER BY alert_id`

func (q *Queries) ListAlertsByUser(ctx context.Context, userID string) ([]BudgetAlert, error) {
	rows, err := q.db.QueryContext(ctx, listAlertsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BudgetAlert
	for rows.Next() {
		i, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deleteAlert = `DELETE FROM budget_alerts WHERE alert_id = ? AND user_id = ?`

func (q *Queries) DeleteAlert(ctx context.Context, id int64, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteAlert, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
