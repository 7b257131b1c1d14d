package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/internal/http/routes"
	"github.com/tendant/simple-idm-otp/internal/httputil"
	"github.com/tendant/simple-idm-otp/internal/session"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

type contextKey string

// UserKey is the context key for the authenticated user.
const UserKey contextKey = "user"

// UserLoader resolves a user id stored in the session.
type UserLoader interface {
	User(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// LoadIdentity resolves the signed-in user from the session. A session that
// points at a missing or deactivated user is treated as anonymous and the
// stale id is dropped. With checkFingerprint, so is a session replayed from
// another device. Must be used after the session middleware.
func LoadIdentity(users UserLoader, logger *slog.Logger, checkFingerprint bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromContext(r.Context())
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := sess.Get(session.KeyUserID)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			id, err := uuid.Parse(raw)
			if err != nil {
				sess.Pop(session.KeyUserID)
				next.ServeHTTP(w, r)
				return
			}
			if checkFingerprint && !sess.MatchesFingerprint(r) {
				logger.Warn("session fingerprint mismatch", "user_id", id)
				sess.Pop(session.KeyUserID)
				sess.Pop(session.KeyFingerprint)
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.User(r.Context(), id)
			if errors.Is(err, domain.ErrUserNotFound) || (err == nil && !user.Active) {
				sess.Pop(session.KeyUserID)
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				logger.Error("failed to load user", "user_id", id, "error", err)
				httputil.Error(w, http.StatusInternalServerError, "internal error")
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLogin redirects anonymous requests to the login page.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			httputil.Redirect(w, r, routes.Path(routes.Login))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUser extracts the authenticated user from the request context.
func GetUser(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(UserKey).(*domain.User)
	return user, ok
}

// GetUserID extracts the authenticated user ID from the request context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	user, ok := GetUser(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return user.ID, true
}

// WithUser returns a context carrying user. Used by tests and embedders
// that authenticate by other means.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}
