package backup

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
)

// SchemaVersion is written into every uploaded document. Documents without a
// version predate versioning and are read as version 1.
const SchemaVersion = 1

// Document field names.
const (
	fieldSchemaVersion = "schema_version"
	fieldUser          = "user"
	fieldTransactions  = "transactions"
	fieldLastBackup    = "last_backup"
)

// Snapshot is the typed form of a backup document.
type Snapshot struct {
	SchemaVersion int
	// User is nil when the document carries no profile.
	User *core.UserProfile
	// Transactions is only meaningful when HasTransactions is set. A document
	// without the key leaves local transactions alone.
	Transactions    []core.Transaction
	HasTransactions bool
	LastBackup      time.Time
}

// Encode renders s in the remote layout. Times become epoch milliseconds and
// amounts become numbers.
func Encode(s Snapshot) Document {
	doc := Document{
		fieldSchemaVersion: int64(SchemaVersion),
		fieldLastBackup:    s.LastBackup.UnixMilli(),
	}
	if s.User != nil {
		doc[fieldUser] = encodeUser(*s.User)
	}
	if s.HasTransactions {
		txs := make([]any, 0, len(s.Transactions))
		for _, t := range s.Transactions {
			txs = append(txs, encodeTransaction(t))
		}
		doc[fieldTransactions] = txs
	}
	return doc
}

func encodeUser(u core.UserProfile) map[string]any {
	return map[string]any{
		"user_id":        u.ID,
		"name":           u.Name,
		"email":          u.Email,
		"monthly_budget": u.MonthlyBudget.InexactFloat64(),
		"created_at":     u.CreatedAt.UnixMilli(),
	}
}

func encodeTransaction(t core.Transaction) map[string]any {
	m := map[string]any{
		"transaction_id": t.ID,
		"user_id":        t.UserID,
		"type":           string(t.Kind),
		"amount":         t.Amount.InexactFloat64(),
		"category_id":    t.CategoryID,
		"date":           t.Date.UnixMilli(),
		"note":           t.Note,
		"receipt_url":    nil,
	}
	if t.ReceiptURL != nil {
		m["receipt_url"] = *t.ReceiptURL
	}
	return m
}

// Decode reads doc leniently. Every missing or wrongly typed field takes its
// default and is listed in the returned slice as a dotted path.
func Decode(doc Document, subject string, now time.Time) (Snapshot, []string, error) {
	var defaulted []string
	root := reader{m: doc, defaulted: &defaulted}

	version := int(root.int64(fieldSchemaVersion, SchemaVersion))
	if version > SchemaVersion {
		return Snapshot{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, version)
	}

	snap := Snapshot{
		SchemaVersion: version,
		LastBackup:    root.millis(fieldLastBackup, time.Time{}),
	}

	if m, ok := doc[fieldUser].(map[string]any); ok {
		u := decodeUser(root.child(fieldUser, m), subject, now)
		snap.User = &u
	}

	if list, ok := asList(doc[fieldTransactions]); ok {
		snap.HasTransactions = true
		snap.Transactions = make([]core.Transaction, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				defaulted = append(defaulted, fmt.Sprintf("%s[%d]", fieldTransactions, i))
				continue
			}
			r := root.child(fmt.Sprintf("%s[%d]", fieldTransactions, i), m)
			snap.Transactions = append(snap.Transactions, decodeTransaction(r, subject, now))
		}
	}
	return snap, defaulted, nil
}

func decodeUser(r reader, subject string, now time.Time) core.UserProfile {
	return core.UserProfile{
		ID:            r.str("user_id", subject),
		Name:          r.str("name", "User"),
		Email:         r.str("email", ""),
		MonthlyBudget: r.decimal("monthly_budget"),
		CreatedAt:     r.millis("created_at", now),
	}
}

func decodeTransaction(r reader, subject string, now time.Time) core.Transaction {
	kind, err := core.ParseKind(r.str("type", string(core.Expense)))
	if err != nil {
		r.mark("type")
		kind = core.Expense
	}
	return core.Transaction{
		ID:         r.int64("transaction_id", 0),
		UserID:     r.str("user_id", subject),
		Kind:       kind,
		Amount:     r.decimal("amount"),
		CategoryID: r.int64("category_id", 0),
		Date:       r.millis("date", now),
		Note:       r.str("note", ""),
		ReceiptURL: r.optStr("receipt_url"),
	}
}

// reader pulls typed fields out of a map and records the ones it had to
// default.
type reader struct {
	m         map[string]any
	path      string
	defaulted *[]string
}

func (r reader) child(path string, m map[string]any) reader {
	return reader{m: m, path: path, defaulted: r.defaulted}
}

func (r reader) mark(key string) {
	if r.path != "" {
		key = r.path + "." + key
	}
	*r.defaulted = append(*r.defaulted, key)
}

func (r reader) str(key, def string) string {
	if s, ok := r.m[key].(string); ok {
		return s
	}
	r.mark(key)
	return def
}

// optStr is nil for missing, null or non-string values. Absence is normal
// here so nothing is recorded.
func (r reader) optStr(key string) *string {
	if s, ok := r.m[key].(string); ok {
		return &s
	}
	return nil
}

func (r reader) int64(key string, def int64) int64 {
	if n, ok := toInt64(r.m[key]); ok {
		return n
	}
	r.mark(key)
	return def
}

func (r reader) decimal(key string) decimal.Decimal {
	if d, ok := toDecimal(r.m[key]); ok {
		return d
	}
	r.mark(key)
	return decimal.Zero
}

func (r reader) millis(key string, def time.Time) time.Time {
	if n, ok := toInt64(r.m[key]); ok {
		return time.UnixMilli(n).UTC()
	}
	r.mark(key)
	return def
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return toInt64(float64(n))
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return toInt64(f)
	}
	return 0, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int, int32, int64:
		i, _ := toInt64(n)
		return decimal.NewFromInt(i), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		if _, err := strconv.ParseFloat(n, 64); err != nil {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(n)
		return d, err == nil
	}
	return decimal.Zero, false
}
