package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "Income"
	Expense Kind = "Expense"
)

type (
	// Kind tells whether money came in or went out.
	Kind string

	UserProfile struct {
		ID            string
		Name          string
		Email         string
		MonthlyBudget decimal.Decimal
		CreatedAt     time.Time
	}

	Transaction struct {
		ID         int64 // 0 means not yet stored
		UserID     string
		Kind       Kind
		Amount     decimal.Decimal
		CategoryID int64
		Date       time.Time
		Note       string
		ReceiptURL *string
		UpdatedAt  time.Time
	}

	Category struct {
		ID     int64
		UserID *string // nil for the shared defaults
		Name   string
		Kind   Kind
		Color  string
	}
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidKind    = errors.New("invalid transaction kind")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrEmptyUserID    = errors.New("empty user id")
	ErrEmptyName      = errors.New("empty name")
	ErrInvalidColor   = errors.New("invalid color")
	ErrNoteTooLong    = errors.New("note too long (max 500 characters)")
	ErrInvalidPercent = errors.New("threshold percentage must be between 1 and 100")
)

// ParseKind accepts the stored spelling and lower-case variants.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income":
		return Income, nil
	case "expense":
		return Expense, nil
	}
	return "", ErrInvalidKind
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// DefaultProfile is the profile used when a user has none stored yet.
func DefaultProfile(userID string, now time.Time) UserProfile {
	return UserProfile{
		ID:            userID,
		Name:          "User",
		MonthlyBudget: decimal.Zero,
		CreatedAt:     now,
	}
}

func (u UserProfile) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrEmptyUserID
	}
	if u.MonthlyBudget.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUserID
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if len(t.Note) > 500 {
		return ErrNoteTooLong
	}
	return nil
}

// Signed returns the amount with expenses negated.
func (t Transaction) Signed() decimal.Decimal {
	if t.Kind == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Kind.Valid() {
		return ErrInvalidKind
	}
	if !validColor(c.Color) {
		return ErrInvalidColor
	}
	return nil
}

// Shared reports whether the category belongs to every user.
func (c Category) Shared() bool {
	return c.UserID == nil
}

func validColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
