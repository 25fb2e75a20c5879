package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping is used by the readiness probe.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ---- profiles ----

// GetUser returns core.ErrNotFound when the user has no stored profile.
func (r *SQLiteRepository) GetUser(ctx context.Context, userID string) (core.UserProfile, error) {
	u, err := r.queries.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserProfile{}, fmt.Errorf("get user %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	return userFromRow(u), nil
}

func (r *SQLiteRepository) UpsertUser(ctx context.Context, u core.UserProfile) error {
	if err := r.queries.UpsertUser(ctx, userToRow(u, r.now())); err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	slog.DebugContext(ctx, "User profile saved", "user_id", u.ID)
	return nil
}

func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := r.queries.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

// ---- transactions ----

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		UserID:     t.UserID,
		Type:       string(t.Kind),
		Amount:     t.Amount.String(),
		CategoryID: t.CategoryID,
		Date:       t.Date.UnixMilli(),
		Note:       t.Note,
		ReceiptUrl: nullString(t.ReceiptURL),
		UpdatedAt:  r.now().UnixMilli(),
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", row.TransactionID,
		"user_id", row.UserID,
		"type", row.Type,
		"amount", row.Amount)

	return transactionFromRow(row)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return transactionFromRow(row)
}

// UpdateTransaction rewrites an existing row owned by t.UserID.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	existing, err := r.GetTransaction(ctx, t.ID)
	if err != nil {
		return err
	}
	if existing.UserID != t.UserID {
		return fmt.Errorf("update transaction %d: %w", t.ID, core.ErrNotFound)
	}
	if _, err := r.queries.UpsertTransaction(ctx, transactionToRow(t, r.now())); err != nil {
		return fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	return nil
}

// ListTransactions returns the user's transactions, newest first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := transactionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID string, id int64) error {
	n, err := r.queries.DeleteTransaction(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// UpsertTransactions writes txs in a single database transaction. Rows with
// ID 0, and rows whose ID is already taken by another user, are inserted as
// new rows. When keepNewerThan is non-zero, existing rows whose local
// updated_at is after it are left untouched. Returns how many rows were
// written.
func (r *SQLiteRepository) UpsertTransactions(ctx context.Context, txs []core.Transaction, keepNewerThan time.Time) (int, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	q := r.queries.WithTx(dbtx)
	now := r.now()
	applied := 0
	for _, t := range txs {
		row := transactionToRow(t, now)
		if t.ID != 0 {
			owner, err := q.GetTransaction(ctx, t.ID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return applied, fmt.Errorf("read transaction %d: %w", t.ID, err)
			case owner.UserID != row.UserID:
				t.ID = 0
			}
		}

		var n int64
		switch {
		case t.ID == 0:
			_, err = q.CreateTransaction(ctx, CreateTransactionParams{
				UserID:     row.UserID,
				Type:       row.Type,
				Amount:     row.Amount,
				CategoryID: row.CategoryID,
				Date:       row.Date,
				Note:       row.Note,
				ReceiptUrl: row.ReceiptUrl,
				UpdatedAt:  row.UpdatedAt,
			})
			n = 1
		case keepNewerThan.IsZero():
			n, err = q.UpsertTransaction(ctx, row)
		default:
			n, err = q.UpsertTransactionIfNotNewer(ctx, row, keepNewerThan.UnixMilli())
		}
		if err != nil {
			return applied, fmt.Errorf("restore transaction %d: %w", t.ID, err)
		}
		applied += int(n)
	}

	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transactions: %w", err)
	}
	return applied, nil
}

// ---- categories ----

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.queries.ListCategoriesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, categoryFromRow(row))
	}
	return out, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	row, err := r.queries.CreateCategory(ctx, CreateCategoryParams{
		UserID: nullString(c.UserID),
		Name:   c.Name,
		Type:   string(c.Kind),
		Color:  c.Color,
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return categoryFromRow(row), nil
}

// SeedDefaultCategories inserts the shared categories once. It reports
// whether anything was inserted.
func (r *SQLiteRepository) SeedDefaultCategories(ctx context.Context) (bool, error) {
	n, err := r.queries.CountSharedCategories(ctx)
	if err != nil {
		return false, fmt.Errorf("count shared categories: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	q := r.queries.WithTx(dbtx)
	for _, c := range core.DefaultCategories() {
		if _, err := q.CreateCategory(ctx, CreateCategoryParams{Name: c.Name, Type: string(c.Kind), Color: c.Color}); err != nil {
			return false, fmt.Errorf("seed category %s: %w", c.Name, err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return false, fmt.Errorf("commit categories: %w", err)
	}

	slog.InfoContext(ctx, "Seeded default categories", "count", len(core.DefaultCategories()))
	return true, nil
}

// ---- savings goals ----

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	row, err := r.queries.CreateGoal(ctx, SavingsGoal{
		UserID:       g.UserID,
		Title:        g.Title,
		TargetAmount: g.TargetAmount.String(),
		SavedAmount:  g.SavedAmount.String(),
		Deadline:     g.Deadline.UnixMilli(),
	})
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create goal: %w", err)
	}
	return goalFromRow(row)
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, userID string, id int64) (core.SavingsGoal, error) {
	row, err := r.queries.GetGoal(ctx, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, fmt.Errorf("get goal %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get goal %d: %w", id, err)
	}
	return goalFromRow(row)
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error) {
	rows, err := r.queries.ListGoalsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	out := make([]core.SavingsGoal, 0, len(rows))
	for _, row := range rows {
		g, err := goalFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateGoalSaved(ctx context.Context, g core.SavingsGoal) error {
	if err := r.queries.UpdateGoalSaved(ctx, g.SavedAmount.String(), g.ID, g.UserID); err != nil {
		return fmt.Errorf("update goal %d: %w", g.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, userID string, id int64) error {
	n, err := r.queries.DeleteGoal(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete goal %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete goal %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// ---- budget alerts ----

// UpsertAlert keeps one alert per user and category.
func (r *SQLiteRepository) UpsertAlert(ctx context.Context, a core.BudgetAlert) (core.BudgetAlert, error) {
	row, err := r.queries.UpsertAlert(ctx, BudgetAlert{
		UserID:              a.UserID,
		CategoryID:          a.CategoryID,
		LimitAmount:         a.LimitAmount.String(),
		ThresholdPercentage: int64(a.ThresholdPercentage),
	})
	if err != nil {
		return core.BudgetAlert{}, fmt.Errorf("upsert alert: %w", err)
	}
	return alertFromRow(row)
}

func (r *SQLiteRepository) ListAlerts(ctx context.Context, userID string) ([]core.BudgetAlert, error) {
	rows, err := r.queries.ListAlertsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out := make([]core.BudgetAlert, 0, len(rows))
	for _, row := range rows {
		a, err := alertFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteAlert(ctx context.Context, userID string, id int64) error {
	n, err := r.queries.DeleteAlert(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete alert %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete alert %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// ---- row mapping ----

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func parseStoredAmount(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", column, s, err)
	}
	return d, nil
}

func userFromRow(u User) core.UserProfile {
	budget, err := decimal.NewFromString(u.MonthlyBudget)
	if err != nil {
		budget = decimal.Zero
	}
	return core.UserProfile{
		ID:            u.UserID,
		Name:          u.Name,
		Email:         u.Email,
		MonthlyBudget: budget,
		CreatedAt:     fromMillis(u.CreatedAt),
	}
}

func userToRow(u core.UserProfile, now time.Time) User {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return User{
		UserID:        u.ID,
		Name:          u.Name,
		Email:         u.Email,
		MonthlyBudget: u.MonthlyBudget.String(),
		CreatedAt:     createdAt.UnixMilli(),
		UpdatedAt:     now.UnixMilli(),
	}
}

func transactionFromRow(row Transaction) (core.Transaction, error) {
	amount, err := parseStoredAmount("amount", row.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:         row.TransactionID,
		UserID:     row.UserID,
		Kind:       core.Kind(row.Type),
		Amount:     amount,
		CategoryID: row.CategoryID,
		Date:       fromMillis(row.Date),
		Note:       row.Note,
		ReceiptURL: stringPtr(row.ReceiptUrl),
		UpdatedAt:  fromMillis(row.UpdatedAt),
	}, nil
}

func transactionToRow(t core.Transaction, now time.Time) Transaction {
	return Transaction{
		TransactionID: t.ID,
		UserID:        t.UserID,
		Type:          string(t.Kind),
		Amount:        t.Amount.String(),
		CategoryID:    t.CategoryID,
		Date:          t.Date.UnixMilli(),
		Note:          t.Note,
		ReceiptUrl:    nullString(t.ReceiptURL),
		UpdatedAt:     now.UnixMilli(),
	}
}

func categoryFromRow(row Category) core.Category {
	return core.Category{
		ID:     row.CategoryID,
		UserID: stringPtr(row.UserID),
		Name:   row.Name,
		Kind:   core.Kind(row.Type),
		Color:  row.Color,
	}
}

func goalFromRow(row SavingsGoal) (core.SavingsGoal, error) {
	target, err := parseStoredAmount("target_amount", row.TargetAmount)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	saved, err := parseStoredAmount("saved_amount", row.SavedAmount)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	return core.SavingsGoal{
		ID:           row.GoalID,
		UserID:       row.UserID,
		Title:        row.Title,
		TargetAmount: target,
		SavedAmount:  saved,
		Deadline:     fromMillis(row.Deadline),
	}, nil
}

func alertFromRow(row BudgetAlert) (core.BudgetAlert, error) {
	limit, err := parseStoredAmount("limit_amount", row.LimitAmount)
	if err != nil {
		return core.BudgetAlert{}, err
	}
	return core.BudgetAlert{
		ID:                  row.AlertID,
		UserID:              row.UserID,
		CategoryID:          row.CategoryID,
		LimitAmount:         limit,
		ThresholdPercentage: int(row.ThresholdPercentage),
	}, nil
}
