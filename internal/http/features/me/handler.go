package me

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/internal/http/features/pages"
	"github.com/tendant/simple-idm-otp/internal/http/middleware"
	"github.com/tendant/simple-idm-otp/internal/httputil"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// ProfileLoader loads the profile of a user.
type ProfileLoader interface {
	Profile(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
}

// Handler handles the signed-in user's own pages.
type Handler struct {
	logger   *slog.Logger
	profiles ProfileLoader
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, profiles ProfileLoader) *Handler {
	return &Handler{
		logger:   logger,
		profiles: profiles,
	}
}

// UserResponse represents the signed-in user on the dashboard.
type UserResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	DisplayName   string     `json:"display_name"`
	EmailVerified bool       `json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// Dashboard renders the signed-in user's account page.
// GET /dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.profiles.Profile(r.Context(), user.ID)
	if err != nil && !errors.Is(err, domain.ErrProfileNotFound) {
		h.logger.Error("failed to load profile", "user_id", user.ID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	resp := UserResponse{
		ID:          user.ID.String(),
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		DisplayName: user.DisplayName(),
		LastLoginAt: user.LastLoginAt,
	}
	if profile != nil {
		resp.EmailVerified = profile.EmailVerified
		if profile.DisplayName != "" {
			resp.DisplayName = profile.DisplayName
		}
	}

	page := pages.DashboardPage
	page.Data = resp
	pages.Render(w, r, http.StatusOK, page)
}
