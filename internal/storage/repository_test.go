package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleTx(userID, amount string, kind core.Kind, date time.Time) core.Transaction {
	return core.Transaction{
		UserID:     userID,
		Kind:       kind,
		Amount:     decimal.RequireFromString(amount),
		CategoryID: 7,
		Date:       date,
		Note:       "lunch",
	}
}

func TestUserProfile(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertUser(ctx, core.UserProfile{
		ID: "u1", Name: "Rahim", Email: "rahim@example.com",
		MonthlyBudget: decimal.RequireFromString("1500.50"), CreatedAt: created,
	}))

	got, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Rahim", got.Name)
	assert.Equal(t, "1500.5", got.MonthlyBudget.String())
	assert.True(t, created.Equal(got.CreatedAt))

	got.Name = "Rahim Uddin"
	require.NoError(t, repo.UpsertUser(ctx, got))
	got, err = repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Rahim Uddin", got.Name)

	ids, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}

func TestTransactions_CRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	day := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	receipt := "https://example.com/r/1.jpg"
	first := sampleTx("u1", "12.50", core.Expense, day)
	first.ReceiptURL = &receipt
	a, err := repo.CreateTransaction(ctx, first)
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	require.NotNil(t, a.ReceiptURL)
	assert.Equal(t, receipt, *a.ReceiptURL)

	b, err := repo.CreateTransaction(ctx, sampleTx("u1", "1000", core.Income, day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	_, err = repo.CreateTransaction(ctx, sampleTx("u2", "5", core.Expense, day))
	require.NoError(t, err)

	list, err := repo.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "newest first")
	assert.Nil(t, list[0].ReceiptURL)

	b.Note = "salary"
	require.NoError(t, repo.UpdateTransaction(ctx, b))
	got, err := repo.GetTransaction(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "salary", got.Note)

	other := b
	other.UserID = "u2"
	assert.ErrorIs(t, repo.UpdateTransaction(ctx, other), core.ErrNotFound)

	require.NoError(t, repo.DeleteTransaction(ctx, "u1", a.ID))
	assert.ErrorIs(t, repo.DeleteTransaction(ctx, "u1", a.ID), core.ErrNotFound)
	_, err = repo.GetTransaction(ctx, a.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpsertTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	day := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	existing, err := repo.CreateTransaction(ctx, sampleTx("u1", "10", core.Expense, day))
	require.NoError(t, err)

	incoming := []core.Transaction{
		{ID: existing.ID, UserID: "u1", Kind: core.Expense, Amount: decimal.NewFromInt(99), Date: day, Note: "restored"},
		{ID: 500, UserID: "u1", Kind: core.Income, Amount: decimal.NewFromInt(7), Date: day},
		{ID: 0, UserID: "u1", Kind: core.Income, Amount: decimal.NewFromInt(3), Date: day},
	}
	n, err := repo.UpsertTransactions(ctx, incoming, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := repo.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	got, err := repo.GetTransaction(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "restored", got.Note)
	assert.Equal(t, "99", got.Amount.String())

	_, err = repo.GetTransaction(ctx, 500)
	require.NoError(t, err)
}

func TestUpsertTransactions_KeepsNewerLocalRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	day := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	editedAt := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return editedAt }
	local, err := repo.CreateTransaction(ctx, sampleTx("u1", "10", core.Expense, day))
	require.NoError(t, err)

	repo.now = time.Now
	backupTakenAt := editedAt.Add(-24 * time.Hour)
	stale := local
	stale.Note = "from backup"
	n, err := repo.UpsertTransactions(ctx, []core.Transaction{stale}, backupTakenAt)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := repo.GetTransaction(ctx, local.ID)
	require.NoError(t, err)
	assert.Equal(t, "lunch", got.Note)

	n, err = repo.UpsertTransactions(ctx, []core.Transaction{stale}, editedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCategories(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seeded, err := repo.SeedDefaultCategories(ctx)
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = repo.SeedDefaultCategories(ctx)
	require.NoError(t, err)
	assert.False(t, seeded)

	owner := "u1"
	custom, err := repo.CreateCategory(ctx, core.Category{UserID: &owner, Name: "Pets", Kind: core.Expense, Color: "#123456"})
	require.NoError(t, err)
	assert.False(t, custom.Shared())

	mine, err := repo.ListCategories(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 13)

	theirs, err := repo.ListCategories(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, theirs, 12)
}

func TestGoalsAndAlerts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	g, err := repo.CreateGoal(ctx, core.SavingsGoal{
		UserID: "u1", Title: "Laptop",
		TargetAmount: decimal.NewFromInt(1000), SavedAmount: decimal.Zero,
		Deadline: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	g, err = g.Contribute(decimal.NewFromInt(250))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateGoalSaved(ctx, g))

	got, err := repo.GetGoal(ctx, "u1", g.ID)
	require.NoError(t, err)
	assert.Equal(t, "250", got.SavedAmount.String())

	_, err = repo.GetGoal(ctx, "u2", g.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	goals, err := repo.ListGoals(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, goals, 1)
	require.NoError(t, repo.DeleteGoal(ctx, "u1", g.ID))

	a, err := repo.UpsertAlert(ctx, core.BudgetAlert{UserID: "u1", CategoryID: 7, LimitAmount: decimal.NewFromInt(200), ThresholdPercentage: 80})
	require.NoError(t, err)
	b, err := repo.UpsertAlert(ctx, core.BudgetAlert{UserID: "u1", CategoryID: 7, LimitAmount: decimal.NewFromInt(300), ThresholdPercentage: 90})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	alerts, err := repo.ListAlerts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 90, alerts[0].ThresholdPercentage)
	require.NoError(t, repo.DeleteAlert(ctx, "u1", a.ID))
}

func TestUpsertTransactions_LeavesOtherUsersRowsAlone(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	day := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	theirs, err := repo.CreateTransaction(ctx, sampleTx("u2", "40", core.Expense, day))
	require.NoError(t, err)

	restored := sampleTx("u1", "15", core.Income, day)
	restored.ID = theirs.ID
	restored.Note = "from u1 backup"
	n, err := repo.UpsertTransactions(ctx, []core.Transaction{restored}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	u2, err := repo.ListTransactions(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, u2, 1)
	assert.Equal(t, theirs.ID, u2[0].ID)
	assert.Equal(t, "40", u2[0].Amount.String())
	assert.Equal(t, "lunch", u2[0].Note)

	u1, err := repo.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, u1, 1)
	assert.NotEqual(t, theirs.ID, u1[0].ID)
	assert.Equal(t, "from u1 backup", u1[0].Note)
}
