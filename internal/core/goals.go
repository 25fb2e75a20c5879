package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultGoalHorizon is how far out a goal's deadline lands when none is given.
const DefaultGoalHorizon = 30 * 24 * time.Hour

type (
	SavingsGoal struct {
		ID           int64
		UserID       string
		Title        string
		TargetAmount decimal.Decimal
		SavedAmount  decimal.Decimal
		Deadline     time.Time
	}

	// BudgetAlert fires once spending in a category reaches
	// ThresholdPercentage of LimitAmount within the current month.
	BudgetAlert struct {
		ID                  int64
		UserID              string
		CategoryID          int64
		LimitAmount         decimal.Decimal
		ThresholdPercentage int
	}
)

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.UserID) == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(g.Title) == "" {
		return ErrEmptyName
	}
	if !g.TargetAmount.IsPositive() || g.SavedAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Progress returns saved/target clamped to [0, 1].
func (g SavingsGoal) Progress() float64 {
	if !g.TargetAmount.IsPositive() {
		return 0
	}
	p, _ := g.SavedAmount.Div(g.TargetAmount).Float64()
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Remaining never goes below zero.
func (g SavingsGoal) Remaining() decimal.Decimal {
	r := g.TargetAmount.Sub(g.SavedAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

func (g SavingsGoal) Reached() bool {
	return g.SavedAmount.GreaterThanOrEqual(g.TargetAmount)
}

// Contribute adds amount to the saved total.
func (g SavingsGoal) Contribute(amount decimal.Decimal) (SavingsGoal, error) {
	if !amount.IsPositive() {
		return g, ErrInvalidAmount
	}
	g.SavedAmount = g.SavedAmount.Add(amount)
	return g, nil
}

func (a BudgetAlert) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return ErrEmptyUserID
	}
	if !a.LimitAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.ThresholdPercentage < 1 || a.ThresholdPercentage > 100 {
		return ErrInvalidPercent
	}
	return nil
}

// Threshold is the spend level at which the alert fires.
func (a BudgetAlert) Threshold() decimal.Decimal {
	return a.LimitAmount.Mul(decimal.NewFromInt(int64(a.ThresholdPercentage))).Div(decimal.NewFromInt(100))
}

func (a BudgetAlert) Triggered(spent decimal.Decimal) bool {
	return spent.GreaterThanOrEqual(a.Threshold())
}
