package trace

import (
	"context"
	"net/http"
	"time"

	"smartbudget/internal/log"

	"github.com/google/uuid"
)

type contextKey struct{}

// HeaderRequestID carries the request id in and out.
const HeaderRequestID = "X-Request-ID"

// Recorder receives one observation per finished request. *metrics.Metrics
// satisfies it.
type Recorder interface {
	ObserveHTTP(method, route string, status int)
}

// Router resolves the route pattern for a request. *http.ServeMux
// satisfies it.
type Router interface {
	Handler(r *http.Request) (h http.Handler, pattern string)
}

type Middleware struct {
	extractIP func(*http.Request) string
	recorder  Recorder
	routes    Router
}

// NewMiddleware builds the tracing middleware. recorder and routes may be
// nil; without routes the pattern is read from the request the mux saw,
// which only works when the mux is the next handler.
func NewMiddleware(extractIP func(*http.Request) string, recorder Recorder, routes Router) *Middleware {
	return &Middleware{extractIP: extractIP, recorder: recorder, routes: routes}
}

// Middleware assigns a request id (reusing a well-formed incoming one), echoes
// it in the response and writes the access log line through the logger
// already on the request context.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		r = r.WithContext(WithRequestID(r.Context(), requestID))
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.Pattern
		if m.routes != nil {
			_, route = m.routes.Handler(r)
		}
		if route == "" {
			route = "unmatched"
		}
		if m.recorder != nil {
			m.recorder.ObserveHTTP(r.Method, route, rw.statusCode)
		}

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}
		log.NewStructuredLogger(log.FromContext(r.Context())).LogHTTPEnd(r.Context(), log.HTTPOutcome{
			RequestID: requestID,
			Method:    r.Method,
			Path:      r.URL.Path,
			Route:     route,
			Status:    rw.statusCode,
			Duration:  time.Since(start),
			ClientIP:  clientIP,
		})
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func GenerateRequestID() string {
	return uuid.NewString()
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// GetRequestID returns "" outside a traced request.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}
