package http

import (
	"time"

	"smartbudget/internal/core"
	"smartbudget/internal/services"
)

// Amounts leave the API as two-decimal strings and times as RFC 3339.

type userDTO struct {
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	MonthlyBudget string `json:"monthly_budget"`
	CreatedAt     string `json:"created_at"`
}

func toUserDTO(u core.UserProfile) userDTO {
	return userDTO{
		UserID:        u.ID,
		Name:          u.Name,
		Email:         u.Email,
		MonthlyBudget: core.FormatAmount(u.MonthlyBudget),
		CreatedAt:     u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type transactionDTO struct {
	ID         int64   `json:"transaction_id"`
	UserID     string  `json:"user_id"`
	Type       string  `json:"type"`
	Amount     string  `json:"amount"`
	CategoryID int64   `json:"category_id"`
	Date       string  `json:"date"`
	Note       string  `json:"note"`
	ReceiptURL *string `json:"receipt_url,omitempty"`
}

func toTransactionDTO(t core.Transaction) transactionDTO {
	return transactionDTO{
		ID:         t.ID,
		UserID:     t.UserID,
		Type:       string(t.Kind),
		Amount:     core.FormatAmount(t.Amount),
		CategoryID: t.CategoryID,
		Date:       t.Date.UTC().Format(time.RFC3339),
		Note:       t.Note,
		ReceiptURL: t.ReceiptURL,
	}
}

func toTransactionDTOs(txs []core.Transaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionDTO(t))
	}
	return out
}

type categoryDTO struct {
	ID     int64  `json:"category_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Color  string `json:"color"`
	Shared bool   `json:"shared"`
}

func toCategoryDTO(c core.Category) categoryDTO {
	return categoryDTO{ID: c.ID, Name: c.Name, Type: string(c.Kind), Color: c.Color, Shared: c.Shared()}
}

type goalDTO struct {
	ID           int64   `json:"goal_id"`
	Title        string  `json:"title"`
	TargetAmount string  `json:"target_amount"`
	SavedAmount  string  `json:"saved_amount"`
	Remaining    string  `json:"remaining"`
	Progress     float64 `json:"progress"`
	Reached      bool    `json:"reached"`
	Deadline     string  `json:"deadline"`
}

func toGoalDTO(g core.SavingsGoal) goalDTO {
	return goalDTO{
		ID:           g.ID,
		Title:        g.Title,
		TargetAmount: core.FormatAmount(g.TargetAmount),
		SavedAmount:  core.FormatAmount(g.SavedAmount),
		Remaining:    core.FormatAmount(g.Remaining()),
		Progress:     g.Progress(),
		Reached:      g.Reached(),
		Deadline:     g.Deadline.UTC().Format(time.RFC3339),
	}
}

type alertDTO struct {
	ID                  int64  `json:"alert_id"`
	CategoryID          int64  `json:"category_id"`
	LimitAmount         string `json:"limit_amount"`
	ThresholdPercentage int    `json:"threshold_percentage"`
	Spent               string `json:"spent,omitempty"`
	Triggered           *bool  `json:"triggered,omitempty"`
}

func toAlertDTO(a core.BudgetAlert) alertDTO {
	return alertDTO{
		ID:                  a.ID,
		CategoryID:          a.CategoryID,
		LimitAmount:         core.FormatAmount(a.LimitAmount),
		ThresholdPercentage: a.ThresholdPercentage,
	}
}

func toAlertStatusDTO(s services.AlertStatus) alertDTO {
	dto := toAlertDTO(s.Alert)
	dto.Spent = core.FormatAmount(s.Spent)
	triggered := s.Triggered
	dto.Triggered = &triggered
	return dto
}

type summaryDTO struct {
	TotalIncome     string           `json:"total_income"`
	TotalExpense    string           `json:"total_expense"`
	Balance         string           `json:"balance"`
	MonthlySpent    string           `json:"monthly_spent"`
	MonthlyBudget   string           `json:"monthly_budget"`
	BudgetRemaining string           `json:"budget_remaining"`
	Recent          []transactionDTO `json:"recent"`
}

func toSummaryDTO(s core.Summary) summaryDTO {
	return summaryDTO{
		TotalIncome:     core.FormatAmount(s.TotalIncome),
		TotalExpense:    core.FormatAmount(s.TotalExpense),
		Balance:         core.FormatAmount(s.Balance),
		MonthlySpent:    core.FormatAmount(s.MonthlySpent),
		MonthlyBudget:   core.FormatAmount(s.MonthlyBudget),
		BudgetRemaining: core.FormatAmount(s.BudgetRemaining),
		Recent:          toTransactionDTOs(s.Recent),
	}
}

type spendingDTO struct {
	CategoryID int64   `json:"category_id"`
	Category   string  `json:"category"`
	Color      string  `json:"color"`
	Total      string  `json:"total"`
	Share      float64 `json:"share"`
}

func toSpendingDTOs(rows []core.CategorySpending) []spendingDTO {
	out := make([]spendingDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, spendingDTO{
			CategoryID: r.Category.ID,
			Category:   r.Category.Name,
			Color:      r.Category.Color,
			Total:      core.FormatAmount(r.Total),
			Share:      r.Share,
		})
	}
	return out
}
