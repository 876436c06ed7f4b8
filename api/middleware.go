/*
middleware.go - Authentication, authorization, and rate limiting

PURPOSE:
  Bearer-token verification in front of operator endpoints, an admin
  gate on top of it, and a per-client rate limit on the public
  (unauthenticated) customer endpoints.

STATUS CODES:
  401 - no token presented
  403 - token invalid/expired, or role insufficient
*/
package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/fidelium/pontos/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext returns the operator identity set by RequireAuth.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}

// RequireAuth verifies the Authorization: Bearer token and stores the
// operator's claims in the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Token de acesso não fornecido.")
			return
		}

		claims, err := h.Auth.Verify(token)
		if err != nil {
			writeError(w, http.StatusForbidden, "Token inválido ou expirado.")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects non-admin operators. Must run after RequireAuth.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || !claims.IsAdmin() {
			writeError(w, http.StatusForbidden, "Acesso restrito a administradores.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RATE LIMITING - Public endpoints only
// =============================================================================

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	mu    sync.Mutex
	perIP map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		perIP: make(map[string]*rate.Limiter),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

func (rl *rateLimiter) limiterFor(addr string) *rate.Limiter {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.perIP[host]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.perIP[host] = l
	}
	return l
}

// Middleware rejects clients exceeding their bucket with 429.
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiterFor(r.RemoteAddr).Allow() {
			writeError(w, http.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
