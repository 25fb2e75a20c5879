package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"smartbudget/internal/identity"
	"smartbudget/internal/log"
	"smartbudget/internal/metrics"
	"smartbudget/internal/middleware/ratelimit"
	"smartbudget/internal/middleware/security"
	"smartbudget/internal/middleware/trace"
	"smartbudget/internal/services"
	"smartbudget/internal/update"
)

// Backups is the subset of the backup service the API drives.
type Backups interface {
	Upload(ctx context.Context) error
	Download(ctx context.Context) error
	UploadProfile(ctx context.Context) error
}

// Exporter writes a user's ledger to a spreadsheet and returns the row count.
type Exporter interface {
	Export(ctx context.Context, userID string) (int, error)
}

// Queue hands export requests to the worker.
type Queue interface {
	PublishBackupRequest(ctx context.Context, userID, operation string) error
}

// Pinger reports whether local storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the API serves. Ledger is required; a nil
// optional dependency turns its endpoints into 503s.
type Deps struct {
	Ledger   *services.LedgerService
	Backups  Backups
	Checker  *update.Checker
	Updates  *update.Manager
	Exporter Exporter
	Queue    Queue
	Verifier identity.TokenVerifier
	Ready    Pinger
	Metrics  *metrics.Metrics
	Logger   *log.Logger

	// RequireAuth rejects requests without a bearer token.
	RequireAuth        bool
	RateLimitPerMinute int
}

type Server struct {
	http.Server

	ledger   *services.LedgerService
	backups  Backups
	checker  *update.Checker
	updates  *update.Manager
	exporter Exporter
	queue    Queue
	verifier identity.TokenVerifier
	ready    Pinger
	metrics  *metrics.Metrics

	requireAuth bool
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector

	shutdownOnce sync.Once
}

func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}

	limits := ratelimit.DefaultConfig()
	if deps.RateLimitPerMinute > 0 {
		limits.RequestsPerMinute = deps.RateLimitPerMinute
	}

	s := &Server{
		ledger:      deps.Ledger,
		backups:     deps.Backups,
		checker:     deps.Checker,
		updates:     deps.Updates,
		exporter:    deps.Exporter,
		queue:       deps.Queue,
		verifier:    deps.Verifier,
		ready:       deps.Ready,
		metrics:     deps.Metrics,
		requireAuth: deps.RequireAuth,
		rateLimiter: ratelimit.NewLimiter(limits),
		detector:    security.NewDetector(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /api/user", s.handleGetUser)
	mux.HandleFunc("PUT /api/user", s.handlePutUser)
	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("POST /api/goals/{id}/contribute", s.handleContribute)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/alerts", s.handleUpsertAlert)
	mux.HandleFunc("DELETE /api/alerts/{id}", s.handleDeleteAlert)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/reports/spending", s.handleSpending)
	mux.HandleFunc("POST /api/sms", s.handleIngestSMS)

	mux.HandleFunc("POST /api/backup/upload", s.handleBackupUpload)
	mux.HandleFunc("POST /api/backup/restore", s.handleBackupRestore)
	mux.HandleFunc("GET /api/update", s.handleUpdateCheck)
	mux.HandleFunc("POST /api/update/install", s.handleUpdateInstall)
	mux.HandleFunc("GET /api/update/status", s.handleUpdateStatus)
	mux.HandleFunc("POST /api/export/sheets", s.handleExportSheets)

	var recorder trace.Recorder
	if s.metrics != nil {
		recorder = s.metrics
	}
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, recorder, mux)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})

	var h http.Handler = mux
	h = s.authenticate(h)
	h = limit(h)
	h = s.detector.Middleware(h)
	h = headers.Middleware(h)
	h = log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(h)
	h = tracer.Middleware(h)
	h = log.Middleware(logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			logFor(r).WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
