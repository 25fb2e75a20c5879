package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(kind Kind, amount string, category int64, date time.Time) Transaction {
	return Transaction{
		UserID:     "u1",
		Kind:       kind,
		Amount:     decimal.RequireFromString(amount),
		CategoryID: category,
		Date:       date,
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2025, 6, 18, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 11, 15, 4, 5, 0, time.UTC), Weekly.Start(now))
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Monthly.Start(now))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Yearly.Start(now))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("Weekly")
	require.NoError(t, err)
	assert.Equal(t, Weekly, p)

	p, err = ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, Monthly, p)

	_, err = ParsePeriod("daily")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	txs := []Transaction{
		tx(Expense, "40", 7, now.Add(-time.Hour)),
		tx(Income, "1000", 1, now.AddDate(0, 0, -3)),
		tx(Expense, "60", 8, now.AddDate(0, 0, -10)),
		tx(Expense, "100", 7, now.AddDate(0, -1, 0)),
	}

	s := Summarize(txs, decimal.NewFromInt(500), now)
	assert.True(t, s.TotalIncome.Equal(decimal.NewFromInt(1000)))
	assert.True(t, s.TotalExpense.Equal(decimal.NewFromInt(200)))
	assert.True(t, s.Balance.Equal(decimal.NewFromInt(800)))
	assert.True(t, s.MonthlySpent.Equal(decimal.NewFromInt(100)))
	assert.True(t, s.BudgetRemaining.Equal(decimal.NewFromInt(400)))
	assert.Len(t, s.Recent, 4)
}

func TestSummarize_RecentIsCapped(t *testing.T) {
	now := time.Now()
	var txs []Transaction
	for i := 0; i < 15; i++ {
		txs = append(txs, tx(Income, "1", 1, now))
	}
	s := Summarize(txs, decimal.Zero, now)
	assert.Len(t, s.Recent, RecentLimit)
}

func TestSpendingByCategory(t *testing.T) {
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	cats := []Category{
		{ID: 7, Name: "Food & Dining", Kind: Expense},
		{ID: 8, Name: "Transportation", Kind: Expense},
		{ID: 9, Name: "Shopping", Kind: Expense},
	}
	txs := []Transaction{
		tx(Expense, "25", 7, now.AddDate(0, 0, -1)),
		tx(Expense, "75", 8, now.AddDate(0, 0, -2)),
		tx(Income, "500", 1, now.AddDate(0, 0, -2)),
		tx(Expense, "999", 9, now.AddDate(0, -2, 0)),
	}

	got := SpendingByCategory(txs, cats, Monthly, now)
	require.Len(t, got, 2)
	assert.Equal(t, "Transportation", got[0].Category.Name)
	assert.InDelta(t, 0.75, got[0].Share, 1e-9)
	assert.Equal(t, "Food & Dining", got[1].Category.Name)
	assert.InDelta(t, 0.25, got[1].Share, 1e-9)

	yearly := SpendingByCategory(txs, cats, Yearly, now)
	require.Len(t, yearly, 3)
	assert.Equal(t, "Shopping", yearly[0].Category.Name)
}

func TestSpendingByCategory_NoExpenses(t *testing.T) {
	now := time.Now()
	got := SpendingByCategory([]Transaction{tx(Income, "10", 1, now)}, nil, Weekly, now)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSpentInCategory(t *testing.T) {
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	txs := []Transaction{
		tx(Expense, "10", 7, now.AddDate(0, 0, -1)),
		tx(Expense, "15", 7, now.AddDate(0, 0, -2)),
		tx(Expense, "50", 8, now.AddDate(0, 0, -2)),
		tx(Expense, "80", 7, now.AddDate(0, -1, 0)),
	}
	assert.True(t, SpentInCategory(txs, 7, now).Equal(decimal.NewFromInt(25)))
}
