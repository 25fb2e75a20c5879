package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smartbudget/internal/cache"
	"smartbudget/internal/core"
	"smartbudget/internal/identity"

	"github.com/shopspring/decimal"
)

// ErrUnrecognizedSMS means the message carried no amount or direction.
var ErrUnrecognizedSMS = errors.New("sms not recognized as a transaction")

// Store is the local persistence the ledger needs. *storage.SQLiteRepository
// satisfies it.
type Store interface {
	GetUser(ctx context.Context, userID string) (core.UserProfile, error)
	UpsertUser(ctx context.Context, u core.UserProfile) error

	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, userID string, id int64) error
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)

	ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)

	CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error)
	GetGoal(ctx context.Context, userID string, id int64) (core.SavingsGoal, error)
	ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error)
	UpdateGoalSaved(ctx context.Context, g core.SavingsGoal) error
	DeleteGoal(ctx context.Context, userID string, id int64) error

	UpsertAlert(ctx context.Context, a core.BudgetAlert) (core.BudgetAlert, error)
	ListAlerts(ctx context.Context, userID string) ([]core.BudgetAlert, error)
	DeleteAlert(ctx context.Context, userID string, id int64) error
}

// Publisher queues a backup request after local writes. *amqp.Client
// satisfies it.
type Publisher interface {
	PublishBackupRequest(ctx context.Context, userID, operation string) error
}

// Recorder counts created transactions. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveTransaction(kind string)
}

// AlertStatus is a budget alert checked against this month's spending.
type AlertStatus struct {
	Alert     core.BudgetAlert
	Spent     decimal.Decimal
	Triggered bool
}

// ProfileUpdate carries the profile fields a caller wants to change.
// Nil fields are left alone.
type ProfileUpdate struct {
	Name          *string
	Email         *string
	MonthlyBudget *decimal.Decimal
}

// LedgerService scopes every local read and write to the current user and
// keeps the remote backup fresh through the optional publisher.
type LedgerService struct {
	store      Store
	identities identity.Provider
	publisher  Publisher
	recorder   Recorder
	categories cache.Cache[[]core.Category]
	now        func() time.Time
}

type Option func(*LedgerService)

func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) {
		s.publisher = p
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *LedgerService) {
		s.recorder = r
	}
}

// WithCategoryCache caches category lists per user.
func WithCategoryCache(c cache.Cache[[]core.Category]) Option {
	return func(s *LedgerService) {
		s.categories = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) {
		s.now = now
	}
}

func NewLedgerService(store Store, ids identity.Provider, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:      store,
		identities: ids,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) subject(ctx context.Context) (string, error) {
	id, err := identity.Subject(ctx, s.identities)
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}
	return id, nil
}

// ---- profile ----

// Profile returns the stored profile, or an unsaved default one.
func (s *LedgerService) Profile(ctx context.Context) (core.UserProfile, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return core.UserProfile{}, err
	}
	return s.profile(ctx, userID)
}

func (s *LedgerService) profile(ctx context.Context, userID string) (core.UserProfile, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.DefaultProfile(userID, s.now()), nil
	}
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return u, nil
}

// UpdateProfile applies upd, creating the profile when it does not exist.
func (s *LedgerService) UpdateProfile(ctx context.Context, upd ProfileUpdate) (core.UserProfile, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return core.UserProfile{}, err
	}
	u, err := s.profile(ctx, userID)
	if err != nil {
		return core.UserProfile{}, err
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.MonthlyBudget != nil {
		u.MonthlyBudget = *upd.MonthlyBudget
	}
	if err := u.Validate(); err != nil {
		return core.UserProfile{}, err
	}
	if err := s.store.UpsertUser(ctx, u); err != nil {
		return core.UserProfile{}, fmt.Errorf("save profile: %w", err)
	}
	s.publishBackup(ctx, userID)
	return u, nil
}

// ---- transactions ----

// CreateTransaction stores t for the current user. A zero date means now.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	t.ID = 0
	t.UserID = userID
	if t.Date.IsZero() {
		t.Date = s.now()
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}
	if s.recorder != nil {
		s.recorder.ObserveTransaction(string(created.Kind))
	}
	s.publishBackup(ctx, userID)
	return created, nil
}

// GetTransaction hides other users' rows behind core.ErrNotFound.
func (s *LedgerService) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.UserID != userID {
		return core.Transaction{}, core.ErrNotFound
	}
	return t, nil
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	t.UserID = userID
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	s.publishBackup(ctx, userID)
	return s.store.GetTransaction(ctx, t.ID)
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	userID, err := s.subject(ctx)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	s.publishBackup(ctx, userID)
	return nil
}

// Transactions lists the current user's transactions, newest first.
func (s *LedgerService) Transactions(ctx context.Context) ([]core.Transaction, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, userID)
}

// IngestSMS turns a bank or mobile-money notification into a transaction.
func (s *LedgerService) IngestSMS(ctx context.Context, body, sender string) (core.Transaction, error) {
	t, ok := core.ParseSMS(body, sender, s.now())
	if !ok {
		return core.Transaction{}, ErrUnrecognizedSMS
	}
	return s.CreateTransaction(ctx, t)
}

// ---- categories ----

// Categories returns the user's own categories plus the shared defaults.
func (s *LedgerService) Categories(ctx context.Context) ([]core.Category, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	if s.categories != nil {
		if cats, ok := s.categories.Get(userID); ok {
			return cats, nil
		}
	}
	cats, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.categories != nil {
		s.categories.Set(userID, cats)
	}
	return cats, nil
}

func (s *LedgerService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return core.Category{}, err
	}
	c.ID = 0
	c.UserID = &userID
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	created, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	if s.categories != nil {
		s.categories.Delete(userID)
	}
	return created, nil
}

// ---- goals ----

func (s *LedgerService) Goals(ctx context.Context) ([]core.SavingsGoal, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListGoals(ctx, userID)
}

// CreateGoal stores g. A zero deadline becomes now plus core.DefaultGoalHorizon.
func (s *LedgerService) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	g.ID = 0
	g.UserID = userID
	if g.Deadline.IsZero() {
		g.Deadline = s.now().Add(core.DefaultGoalHorizon)
	}
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	return s.store.CreateGoal(ctx, g)
}

// Contribute adds amount to a goal's saved total.
func (s *LedgerService) Contribute(ctx context.Context, goalID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	g, err := s.store.GetGoal(ctx, userID, goalID)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	g, err = g.Contribute(amount)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	if err := s.store.UpdateGoalSaved(ctx, g); err != nil {
		return core.SavingsGoal{}, err
	}
	if g.Reached() {
		slog.InfoContext(ctx, "Savings goal reached",
			"component", "ledger",
			"user_id", userID,
			"goal_id", g.ID)
	}
	return g, nil
}

func (s *LedgerService) DeleteGoal(ctx context.Context, goalID int64) error {
	userID, err := s.subject(ctx)
	if err != nil {
		return err
	}
	return s.store.DeleteGoal(ctx, userID, goalID)
}

// ---- alerts ----

func (s *LedgerService) Alerts(ctx context.Context) ([]core.BudgetAlert, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListAlerts(ctx, userID)
}

// UpsertAlert sets the limit for a category, replacing any existing one.
func (s *LedgerService) UpsertAlert(ctx context.Context, a core.BudgetAlert) (core.BudgetAlert, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return core.BudgetAlert{}, err
	}
	a.UserID = userID
	if err := a.Validate(); err != nil {
		return core.BudgetAlert{}, err
	}
	return s.store.UpsertAlert(ctx, a)
}

func (s *LedgerService) DeleteAlert(ctx context.Context, alertID int64) error {
	userID, err := s.subject(ctx)
	if err != nil {
		return err
	}
	return s.store.DeleteAlert(ctx, userID, alertID)
}

// EvaluateAlerts checks every alert against spending since the first of the
// month.
func (s *LedgerService) EvaluateAlerts(ctx context.Context) ([]AlertStatus, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := s.store.ListAlerts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return []AlertStatus{}, nil
	}
	txs, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]AlertStatus, 0, len(alerts))
	for _, a := range alerts {
		spent := core.SpentInCategory(txs, a.CategoryID, now)
		out = append(out, AlertStatus{Alert: a, Spent: spent, Triggered: a.Triggered(spent)})
	}
	return out, nil
}

// ---- reports ----

func (s *LedgerService) Summary(ctx context.Context) (core.Summary, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return core.Summary{}, err
	}
	u, err := s.profile(ctx, userID)
	if err != nil {
		return core.Summary{}, err
	}
	txs, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return core.Summary{}, err
	}
	return core.Summarize(txs, u.MonthlyBudget, s.now()), nil
}

func (s *LedgerService) Spending(ctx context.Context, period core.Period) ([]core.CategorySpending, error) {
	userID, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	cats, err := s.Categories(ctx)
	if err != nil {
		return nil, err
	}
	return core.SpendingByCategory(txs, cats, period, s.now()), nil
}

func (s *LedgerService) publishBackup(ctx context.Context, userID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBackupRequest(ctx, userID, "upload"); err != nil {
		// the local write already succeeded
		slog.ErrorContext(ctx, "Failed to publish backup request",
			"component", "ledger",
			"user_id", userID,
			"error", err)
	}
}
