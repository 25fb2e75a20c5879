package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSMS(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	t.Run("payment is an expense", func(t *testing.T) {
		tx, ok := ParseSMS("Payment of Tk 1,250.50 to Daraz successful.", "bKash", now)
		assert.True(t, ok)
		assert.Equal(t, Expense, tx.Kind)
		assert.Equal(t, "1250.5", tx.Amount.String())
		assert.Equal(t, int64(0), tx.CategoryID)
		assert.Equal(t, "Auto-detected from bKash", tx.Note)
		assert.Equal(t, now, tx.Date)
	})

	t.Run("cash in is income", func(t *testing.T) {
		tx, ok := ParseSMS("Cash In BDT500 from 01711000000.", "Nagad", now)
		assert.True(t, ok)
		assert.Equal(t, Income, tx.Kind)
		assert.Equal(t, "500", tx.Amount.String())
	})

	t.Run("keywords are case insensitive", func(t *testing.T) {
		tx, ok := ParseSMS("your SALARY of tk 30000 has been credited", "Bank", now)
		assert.True(t, ok)
		assert.Equal(t, Income, tx.Kind)
	})

	t.Run("expense keywords take precedence", func(t *testing.T) {
		tx, ok := ParseSMS("Received your payment of Tk 200.", "Bank", now)
		assert.True(t, ok)
		assert.Equal(t, Expense, tx.Kind)
	})

	t.Run("trailing full stop is ignored", func(t *testing.T) {
		tx, ok := ParseSMS("Send Money Tk 75.", "bKash", now)
		assert.True(t, ok)
		assert.Equal(t, "75", tx.Amount.String())
	})

	t.Run("no amount", func(t *testing.T) {
		_, ok := ParseSMS("Your OTP is 1234", "bKash", now)
		assert.False(t, ok)
	})

	t.Run("no direction", func(t *testing.T) {
		_, ok := ParseSMS("Your balance is Tk 900", "bKash", now)
		assert.False(t, ok)
	})
}
