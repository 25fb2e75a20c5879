package core

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var smsAmountRe = regexp.MustCompile(`(?i)(?:Tk|BDT)\s*([0-9,.]+)`)

// Expense keywords win when a message matches both lists.
var (
	smsExpenseWords = []string{"payment", "cash out", "send money", "paid"}
	smsIncomeWords  = []string{"received", "cash in", "salary"}
)

// ParseSMS extracts a transaction from a bank or mobile-money notification.
// The returned transaction has no user and category 0 (uncategorized).
// ok is false when the body carries no amount or no recognizable direction.
func ParseSMS(body, sender string, now time.Time) (tx Transaction, ok bool) {
	m := smsAmountRe.FindStringSubmatch(body)
	if len(m) < 2 {
		return Transaction{}, false
	}
	raw := strings.TrimRight(strings.ReplaceAll(m[1], ",", ""), ".")
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		return Transaction{}, false
	}

	lower := strings.ToLower(body)
	var kind Kind
	switch {
	case containsAny(lower, smsExpenseWords):
		kind = Expense
	case containsAny(lower, smsIncomeWords):
		kind = Income
	default:
		return Transaction{}, false
	}

	return Transaction{
		Kind:       kind,
		Amount:     amount,
		CategoryID: 0,
		Date:       now,
		Note:       "Auto-detected from " + sender,
	}, true
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
