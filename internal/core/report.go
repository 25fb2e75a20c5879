package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// RecentLimit is how many transactions the dashboard shows.
const RecentLimit = 10

type (
	// Period selects the window a spending report covers.
	Period string

	// Summary is the dashboard view of a user's ledger.
	Summary struct {
		TotalIncome     decimal.Decimal
		TotalExpense    decimal.Decimal
		Balance         decimal.Decimal
		MonthlySpent    decimal.Decimal
		MonthlyBudget   decimal.Decimal
		BudgetRemaining decimal.Decimal
		Recent          []Transaction
	}

	// CategorySpending is one row of the spending breakdown.
	CategorySpending struct {
		Category Category
		Total    decimal.Decimal
		Share    float64 // fraction of the period's total expense, 0..1
	}
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case Weekly, Monthly, Yearly:
		return p, nil
	case "":
		return Monthly, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Start returns the beginning of the period that ends at now.
// Weekly is a rolling seven days; the others snap to the calendar.
func (p Period) Start(now time.Time) time.Time {
	switch p {
	case Weekly:
		return now.AddDate(0, 0, -7)
	case Yearly:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	default:
		return StartOfMonth(now)
	}
}

func StartOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// Summarize computes totals over txs. txs are expected newest first, as
// the repository returns them.
func Summarize(txs []Transaction, budget decimal.Decimal, now time.Time) Summary {
	s := Summary{
		TotalIncome:   decimal.Zero,
		TotalExpense:  decimal.Zero,
		MonthlySpent:  decimal.Zero,
		MonthlyBudget: budget,
	}
	monthStart := StartOfMonth(now)
	for _, t := range txs {
		switch t.Kind {
		case Income:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case Expense:
			s.TotalExpense = s.TotalExpense.Add(t.Amount)
			if !t.Date.Before(monthStart) && !t.Date.After(now) {
				s.MonthlySpent = s.MonthlySpent.Add(t.Amount)
			}
		}
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpense)
	s.BudgetRemaining = budget.Sub(s.MonthlySpent)

	n := len(txs)
	if n > RecentLimit {
		n = RecentLimit
	}
	s.Recent = append([]Transaction(nil), txs[:n]...)
	return s
}

// SpendingByCategory breaks expenses in the period down by category.
// Categories with nothing spent are left out and rows are sorted by total,
// largest first. Uncategorized expenses count toward the total but get no row.
func SpendingByCategory(txs []Transaction, categories []Category, period Period, now time.Time) []CategorySpending {
	start := period.Start(now)
	total := decimal.Zero
	byCategory := make(map[int64]decimal.Decimal)
	for _, t := range txs {
		if t.Kind != Expense || t.Date.Before(start) || t.Date.After(now) {
			continue
		}
		total = total.Add(t.Amount)
		byCategory[t.CategoryID] = byCategory[t.CategoryID].Add(t.Amount)
	}
	if total.IsZero() {
		return []CategorySpending{}
	}

	out := make([]CategorySpending, 0, len(categories))
	for _, c := range categories {
		amount, ok := byCategory[c.ID]
		if !ok || !amount.IsPositive() {
			continue
		}
		share, _ := amount.Div(total).Float64()
		out = append(out, CategorySpending{Category: c, Total: amount, Share: share})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})
	return out
}

// SpentInCategory sums expenses in one category since the start of the month.
func SpentInCategory(txs []Transaction, categoryID int64, now time.Time) decimal.Decimal {
	start := StartOfMonth(now)
	spent := decimal.Zero
	for _, t := range txs {
		if t.Kind == Expense && t.CategoryID == categoryID && !t.Date.Before(start) && !t.Date.After(now) {
			spent = spent.Add(t.Amount)
		}
	}
	return spent
}
