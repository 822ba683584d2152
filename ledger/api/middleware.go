// ledger/api/middleware.go
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Ftotnem/POINTS-LEDGER/ledger/service"
	"github.com/Ftotnem/POINTS-LEDGER/shared/api"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess service.Session)

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// withSession resolves the bearer token before calling next.
func (h *LedgerAPIHandlers) withSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.requestContext(r)
		defer cancel()

		sess, err := h.Auth.Authenticate(ctx, bearerToken(r))
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		next(w, r, sess)
	})
}

// adminOnly additionally requires administrator capability.
func (h *LedgerAPIHandlers) adminOnly(next sessionHandler) http.Handler {
	return h.withSession(func(w http.ResponseWriter, r *http.Request, sess service.Session) {
		ctx, cancel := h.requestContext(r)
		defer cancel()

		if err := h.Access.RequireAdministrator(ctx, sess); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		next(w, r, sess)
	})
}

// rateLimited rejects requests beyond the sign-in limiter with 429.
func (h *LedgerAPIHandlers) rateLimited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.signInLimiter.Allow() {
			w.Header().Set("Retry-After", "1")
			api.WriteError(w, http.StatusTooManyRequests, "too many sign-in attempts, try later")
			return
		}
		next(w, r)
	})
}

func (h *LedgerAPIHandlers) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}
