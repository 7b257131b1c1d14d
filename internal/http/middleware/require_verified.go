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

// VerifyEmailWarning is flashed when an unverified user is sent to the OTP page.
const VerifyEmailWarning = "Please verify your email to continue."

// ProfileLoader returns the profile of a user, creating it when missing.
type ProfileLoader interface {
	Profile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
}

// RequireVerifiedEmail keeps a signed-in user with an unverified email on
// the OTP page. Exempt routes and namespaces pass through. Must be used after
// LoadIdentity and inside the route tag.
func RequireVerifiedEmail(profiles ProfileLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			profile, err := profiles.Profile(r.Context(), user.ID)
			if err != nil {
				if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrProfileNotFound) {
					next.ServeHTTP(w, r)
					return
				}
				logger.Error("failed to load profile", "user_id", user.ID, "error", err)
				httputil.Error(w, http.StatusInternalServerError, "internal error")
				return
			}
			if profile.EmailVerified {
				next.ServeHTTP(w, r)
				return
			}

			sess := session.FromContext(r.Context())
			match, _ := routes.FromContext(r.Context())
			if routes.IsExempt(match.Name) || routes.IsExemptNamespace(match.Namespace) {
				if match.Name == routes.VerifyOTP && sess != nil {
					sess.Set(session.KeyPendingUserID, user.ID.String())
				}
				next.ServeHTTP(w, r)
				return
			}

			verifyPath := routes.Path(routes.VerifyOTP)
			if sess != nil {
				sess.Set(session.KeyPendingUserID, user.ID.String())
				if r.URL.Path != verifyPath {
					sess.AddFlash(session.LevelWarning, VerifyEmailWarning)
				}
			}
			httputil.Redirect(w, r, verifyPath)
		})
	}
}
