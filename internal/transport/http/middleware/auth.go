package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-account-api/internal/application/token"
	"github.com/go-account-api/internal/domain"
)

type contextKey string

const (
	ClaimsKey  contextKey = "claims"
	UserKey    contextKey = "user"
	SessionKey contextKey = "session"
)

// SessionVerifier validates session tokens against the holder's session list.
type SessionVerifier interface {
	ParseSession(tokenStr string) (*token.Claims, error)
	CheckSession(u *domain.User, claims *token.Claims) (*domain.SessionToken, error)
}

// UserLoader fetches the token subject and records session use.
type UserLoader interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	TouchSession(ctx context.Context, userID string, index int, jti string, at time.Time) error
}

// Auth returns middleware that validates the Bearer session token, loads its
// subject and checks the token is still in the subject's session list. The
// user, claims and live session entry are injected into the request context.
func Auth(tokens SessionVerifier, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			claims, err := tokens.ParseSession(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			u, err := users.Get(r.Context(), claims.Subject)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			sess, err := tokens.CheckSession(u, claims)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "session revoked")
				return
			}

			// Best effort; a failed stamp never blocks the request.
			now := time.Now()
			sess.LastUsedAt = now
			for i := range u.Sessions {
				if u.Sessions[i].JTI == claims.ID {
					_ = users.TouchSession(r.Context(), u.UserID, i, claims.ID, now)
					break
				}
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			ctx = context.WithValue(ctx, UserKey, u)
			ctx = context.WithValue(ctx, SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts token claims from the request context.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(ClaimsKey).(*token.Claims)
	return c, ok
}

// UserFromContext extracts the authenticated user from the request context.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(UserKey).(*domain.User)
	return u, ok
}
