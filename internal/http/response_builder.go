// Package http exposes the ledger, backup, update and export operations as
// a JSON API.
//
// This file holds the fluent builder every handler uses to write JSON
// responses, plus the mapping from domain errors to status codes.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"smartbudget/internal/backup"
	"smartbudget/internal/core"
	"smartbudget/internal/identity"
	"smartbudget/internal/netcheck"
	"smartbudget/internal/services"
	"smartbudget/internal/update"
)

// JSONResponseBuilder builds one JSON response.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse starts a 200 response with no body.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for k, v := range b.headers {
		w.Header().Set(k, v)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode response", "component", "http", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse is a response carrying {"error": message}.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal error")
}

// statusFor maps domain errors to HTTP statuses. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, backup.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyUserID),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidColor),
		errors.Is(err, core.ErrNoteTooLong),
		errors.Is(err, core.ErrInvalidPercent),
		errors.Is(err, services.ErrUnrecognizedSMS):
		return http.StatusUnprocessableEntity
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, update.ErrInstallBlocked):
		return http.StatusForbidden
	case errors.Is(err, update.ErrBusy), errors.Is(err, update.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, update.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, update.ErrRequestFailed), errors.Is(err, update.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, netcheck.ErrNoConnectivity):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError logs server-side failures and answers with the mapped status.
// Client errors echo the error text; server errors stay generic.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= 500 && status != http.StatusServiceUnavailable {
		logFor(r).ErrorContext(r.Context(), "Request failed",
			"operation", op,
			"error", err)
		InternalServerError().Write(w)
		return
	}
	ErrorResponse(status, err.Error()).Write(w)
}
