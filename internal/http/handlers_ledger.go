package http

import (
	"errors"
	"net/http"

	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/netcheck"
	"smartbudget/internal/services"
)

func logFor(r *http.Request) *log.Logger {
	return log.FromContext(r.Context()).WithComponent(log.ComponentHTTP)
}

// ---- profile ----

type userInput struct {
	Name          *string      `json:"name"`
	Email         *string      `json:"email"`
	MonthlyBudget *amountField `json:"monthly_budget"`
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.ledger.Profile(r.Context())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(toUserDTO(u)).Write(w)
}

func (s *Server) handlePutUser(w http.ResponseWriter, r *http.Request) {
	var in userInput
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	upd := services.ProfileUpdate{}
	if in.Name != nil {
		name := sanitizeInput(*in.Name)
		upd.Name = &name
	}
	if in.Email != nil {
		email := sanitizeInput(*in.Email)
		upd.Email = &email
	}
	if in.MonthlyBudget != nil {
		budget, err := in.MonthlyBudget.NonNegative()
		if err != nil {
			writeError(w, r, log.OpValidate, err)
			return
		}
		upd.MonthlyBudget = &budget
	}

	u, err := s.ledger.UpdateProfile(r.Context(), upd)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	if s.backups != nil {
		// Best effort; the next full backup carries the profile too.
		if err := s.backups.UploadProfile(r.Context()); err != nil && !errors.Is(err, netcheck.ErrNoConnectivity) {
			logFor(r).WarnContext(r.Context(), "Profile backup failed",
				"user_id", u.ID,
				"error", err)
		}
	}
	NewJSONResponse().Body(toUserDTO(u)).Write(w)
}

// ---- categories ----

type categoryInput struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.ledger.Categories(r.Context())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	out := make([]categoryDTO, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryDTO(c))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	kind, err := core.ParseKind(in.Type)
	if err != nil {
		writeError(w, r, log.OpValidate, err)
		return
	}

	c, err := s.ledger.CreateCategory(r.Context(), core.Category{
		Name:  sanitizeInput(in.Name),
		Kind:  kind,
		Color: in.Color,
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toCategoryDTO(c)).Write(w)
}

// ---- transactions ----

type transactionInput struct {
	Type       string      `json:"type"`
	Amount     amountField `json:"amount"`
	CategoryID int64       `json:"category_id"`
	Date       string      `json:"date"`
	Note       string      `json:"note"`
	ReceiptURL *string     `json:"receipt_url"`
}

func (in transactionInput) toTransaction() (core.Transaction, error) {
	kind, err := core.ParseKind(in.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := in.Amount.Decimal()
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := parseDate(in.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Kind:       kind,
		Amount:     amount,
		CategoryID: in.CategoryID,
		Date:       date,
		Note:       sanitizeInput(in.Note),
		ReceiptURL: in.ReceiptURL,
	}, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.Transactions(r.Context())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Body(toTransactionDTOs(txs)).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in transactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	t, err := in.toTransaction()
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	created, err := s.ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	log.NewStructuredLogger(logFor(r)).LogTransactionCreated(r.Context(),
		created.UserID, created.ID, string(created.Kind), core.FormatAmount(created.Amount), created.CategoryID)
	NewJSONResponse().Status(http.StatusCreated).Body(toTransactionDTO(created)).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	t, err := s.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(toTransactionDTO(t)).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var in transactionInput
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	t, err := in.toTransaction()
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if t.Date.IsZero() {
		BadRequestError("date is required").Write(w)
		return
	}
	t.ID = id

	updated, err := s.ledger.UpdateTransaction(r.Context(), t)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(toTransactionDTO(updated)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// ---- SMS ----

type smsInput struct {
	Body   string `json:"body"`
	Sender string `json:"sender"`
}

func (s *Server) handleIngestSMS(w http.ResponseWriter, r *http.Request) {
	var in smsInput
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	t, err := s.ledger.IngestSMS(r.Context(), in.Body, sanitizeInput(in.Sender))
	if err != nil {
		writeError(w, r, log.OpParse, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toTransactionDTO(t)).Write(w)
}

// ---- goals ----

type goalInput struct {
	Title        string      `json:"title"`
	TargetAmount amountField `json:"target_amount"`
	Deadline     string      `json:"deadline"`
}

type contributionInput struct {
	Amount amountField `json:"amount"`
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.ledger.Goals(r.Context())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	out := make([]goalDTO, 0, len(goals))
	for _, g := range goals {
		out = append(out, toGoalDTO(g))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var in goalInput
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	target, err := in.TargetAmount.Decimal()
	if err != nil {
		writeError(w, r, log.OpValidate, err)
		return
	}
	deadline, err := parseDate(in.Deadline)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	g, err := s.ledger.CreateGoal(r.Context(), core.SavingsGoal{
		Title:        sanitizeInput(in.Title),
		TargetAmount: target,
		Deadline:     deadline,
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(toGoalDTO(g)).Write(w)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	var in contributionInput
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	amount, err := in.Amount.Decimal()
	if err != nil {
		writeError(w, r, log.OpValidate, err)
		return
	}
	g, err := s.ledger.Contribute(r.Context(), id, amount)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(toGoalDTO(g)).Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := s.ledger.DeleteGoal(r.Context(), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// ---- alerts ----

type alertInput struct {
	CategoryID          int64       `json:"category_id"`
	LimitAmount         amountField `json:"limit_amount"`
	ThresholdPercentage int         `json:"threshold_percentage"`
}

// handleListAlerts returns each alert with this month's spend and whether
// it fired.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.ledger.EvaluateAlerts(r.Context())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	out := make([]alertDTO, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, toAlertStatusDTO(st))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleUpsertAlert(w http.ResponseWriter, r *http.Request) {
	var in alertInput
	if err := decodeJSON(w, r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	limit, err := in.LimitAmount.Decimal()
	if err != nil {
		writeError(w, r, log.OpValidate, err)
		return
	}
	a, err := s.ledger.UpsertAlert(r.Context(), core.BudgetAlert{
		CategoryID:          in.CategoryID,
		LimitAmount:         limit,
		ThresholdPercentage: in.ThresholdPercentage,
	})
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(toAlertDTO(a)).Write(w)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := s.ledger.DeleteAlert(r.Context(), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// ---- reports ----

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.ledger.Summary(r.Context())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(toSummaryDTO(sum)).Write(w)
}

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	period, err := core.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	rows, err := s.ledger.Spending(r.Context(), period)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(toSpendingDTOs(rows)).Write(w)
}
