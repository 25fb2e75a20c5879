package storage

import "database/sql"

// Row types mirror the tables in migrations/. Amounts are stored as decimal
// text and times as epoch milliseconds.

type User struct {
	UserID        string
	Name          string
	Email         string
	MonthlyBudget string
	CreatedAt     int64
	UpdatedAt     int64
}

type Transaction struct {
	TransactionID int64
	UserID        string
	Type          string
	Amount        string
	CategoryID    int64
	Date          int64
	Note          string
	ReceiptUrl    sql.NullString
	UpdatedAt     int64
}

type Category struct {
	CategoryID int64
	UserID     sql.NullString
	Name       string
	Type       string
	Color      string
}

type SavingsGoal struct {
	GoalID       int64
	UserID       string
	Title        string
	TargetAmount string
	SavedAmount  string
	Deadline     int64
}

type BudgetAlert struct {
	AlertID             int64
	UserID              string
	CategoryID          int64
	LimitAmount         string
	ThresholdPercentage int64
}
