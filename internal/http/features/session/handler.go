package session

import (
	"log/slog"
	"net/http"

	"github.com/tendant/simple-idm-otp/internal/http/features/pages"
	"github.com/tendant/simple-idm-otp/internal/http/middleware"
	"github.com/tendant/simple-idm-otp/internal/http/routes"
	"github.com/tendant/simple-idm-otp/internal/httputil"
	websession "github.com/tendant/simple-idm-otp/internal/session"
)

// MsgLoggedOut is flashed on the login page after logout.
const MsgLoggedOut = "You have been logged out."

// Handler handles session endpoints.
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Logout drops every session value, including any pending verification,
// and deletes the stored session.
// GET|POST /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if userID, ok := middleware.GetUserID(r.Context()); ok {
		h.logger.Info("user logged out", "user_id", userID)
	}
	if sess := websession.FromContext(r.Context()); sess != nil {
		if err := sess.Clear(); err != nil {
			h.logger.Error("failed to destroy session", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "logout failed")
			return
		}
	}
	pages.FlashRedirect(w, r, websession.LevelSuccess, MsgLoggedOut, routes.Login)
}
