package http

import (
	"net/http"
	"strings"

	"smartbudget/internal/identity"
	"smartbudget/internal/log"
)

// authenticate places the caller's identity on the request context. A bearer
// token must verify; without one the caller is anonymous unless auth is
// required, in which case only the probe endpoints stay open.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			if s.requireAuth && strings.HasPrefix(r.URL.Path, "/api/") {
				ErrorResponse(http.StatusUnauthorized, "authentication required").
					Header("WWW-Authenticate", "Bearer").
					Write(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), identity.Anonymous())))
			return
		}

		if s.verifier == nil {
			ErrorResponse(http.StatusUnauthorized, "token verification unavailable").Write(w)
			return
		}
		id, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			logFor(r).WarnContext(r.Context(), "Rejected bearer token", "error", err)
			ErrorResponse(http.StatusUnauthorized, "invalid token").
				Header("WWW-Authenticate", `Bearer error="invalid_token"`).
				Write(w)
			return
		}

		logger := logFor(r).With("user_id", id.Subject)
		ctx := identity.WithIdentity(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(log.NewContext(ctx, logger)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[len("Bearer "):])
	return token, token != ""
}
