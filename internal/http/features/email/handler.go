package email

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/internal/http/features/pages"
	"github.com/tendant/simple-idm-otp/internal/http/routes"
	"github.com/tendant/simple-idm-otp/internal/httputil"
	"github.com/tendant/simple-idm-otp/internal/session"
	"github.com/tendant/simple-idm-otp/pkg/auth"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

const (
	MsgActivated       = "Your account has been activated! You can now log in."
	MsgVerified        = "Your account has been verified! You can now log in."
	MsgNoPending       = "No pending verification found. Please register first."
	MsgUserNotFound    = "User not found. Please register again."
	MsgOTPRequired     = "Please enter the OTP code."
	MsgOTPInvalid      = "Invalid OTP code."
	MsgOTPExpired      = "OTP has expired. Use the resend option below to get a fresh code."
	MsgAlreadyVerified = "Your account is already verified. You can log in."
	MsgOTPResent       = "A new OTP has been sent to your email."
)

// ErrorSendVerification is the JSON error body when the OTP email fails.
const ErrorSendVerification = "failed to send verification email"

type Handler struct {
	logger   *slog.Logger
	accounts *auth.AccountService
}

func NewHandler(logger *slog.Logger, accounts *auth.AccountService) *Handler {
	return &Handler{
		logger:   logger,
		accounts: accounts,
	}
}

type VerifyOTPRequest struct {
	OTP string `json:"otp" form:"otp"`
}

// Activate activates an account from the emailed link. It does not verify
// the email address.
// GET /activate/{uidb64}/{token}
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	uidb64 := chi.URLParam(r, "uidb64")
	token := chi.URLParam(r, "token")

	user, err := h.accounts.ActivateByLink(r.Context(), uidb64, token)
	if err != nil {
		if errors.Is(err, domain.ErrActivationInvalid) {
			h.logger.Info("invalid activation link", "error", err)
			pages.Render(w, r, http.StatusBadRequest, pages.ActivationInvalidPage)
			return
		}
		h.logger.Error("activation failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "activation failed")
		return
	}

	h.logger.Info("account activated by link", "user_id", user.ID)
	pages.FlashRedirect(w, r, session.LevelSuccess, MsgActivated, routes.Login)
}

// pendingUser returns the user id anchored by registration or the
// verification gate.
func pendingUser(sess *session.Session) (uuid.UUID, bool) {
	raw, ok := sess.Get(session.KeyPendingUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// VerifyOTPPage renders the OTP form for the pending user.
// GET /verify-otp
func (h *Handler) VerifyOTPPage(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	userID, ok := pendingUser(sess)
	if !ok {
		pages.FlashRedirect(w, r, session.LevelError, MsgNoPending, routes.Register)
		return
	}

	if _, err := h.accounts.User(r.Context(), userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			sess.Pop(session.KeyPendingUserID)
			pages.FlashRedirect(w, r, session.LevelError, MsgUserNotFound, routes.Register)
			return
		}
		h.logger.Error("failed to load pending user", "user_id", userID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	pages.Render(w, r, http.StatusOK, pages.VerifyOTPPage)
}

// VerifyOTP checks the submitted code. A match activates the account and
// verifies the email.
// POST /verify-otp
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := httputil.Bind(r, &req); err != nil {
		httputil.BindError(w, err)
		return
	}

	sess := session.FromContext(r.Context())
	userID, ok := pendingUser(sess)
	if !ok {
		pages.FlashRedirect(w, r, session.LevelError, MsgNoPending, routes.Register)
		return
	}

	code := strings.TrimSpace(req.OTP)
	if code == "" {
		pages.FlashRedirect(w, r, session.LevelError, MsgOTPRequired, routes.VerifyOTP)
		return
	}

	err := h.accounts.VerifyRegistrationOTP(r.Context(), userID, code)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrOTPExpired):
		pages.FlashRedirect(w, r, session.LevelError, MsgOTPExpired, routes.VerifyOTP)
		return
	case errors.Is(err, domain.ErrOTPInvalid):
		pages.FlashRedirect(w, r, session.LevelError, MsgOTPInvalid, routes.VerifyOTP)
		return
	case errors.Is(err, domain.ErrUserNotFound):
		sess.Pop(session.KeyPendingUserID)
		pages.FlashRedirect(w, r, session.LevelError, MsgUserNotFound, routes.Register)
		return
	default:
		h.logger.Error("otp verification failed", "user_id", userID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "verification failed")
		return
	}

	sess.Pop(session.KeyPendingUserID)
	pages.FlashRedirect(w, r, session.LevelSuccess, MsgVerified, routes.Login)
}

// ResendOTPPage sends a browser back to the OTP form.
// GET /resend-otp
func (h *Handler) ResendOTPPage(w http.ResponseWriter, r *http.Request) {
	httputil.Redirect(w, r, routes.Path(routes.VerifyOTP))
}

// ResendOTP issues a fresh registration code, at most once per resend wait.
// POST /resend-otp
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	userID, ok := pendingUser(sess)
	if !ok {
		pages.FlashRedirect(w, r, session.LevelError, MsgNoPending, routes.Register)
		return
	}

	err := h.accounts.ResendRegistrationOTP(r.Context(), userID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAccountAlreadyActive):
		pages.FlashRedirect(w, r, session.LevelInfo, MsgAlreadyVerified, routes.Login)
		return
	case errors.Is(err, domain.ErrOTPThrottled):
		pages.FlashRedirect(w, r, session.LevelWarning, throttleMessage(h.accounts.ResendWait()), routes.VerifyOTP)
		return
	case errors.Is(err, domain.ErrUserNotFound):
		sess.Pop(session.KeyPendingUserID)
		pages.FlashRedirect(w, r, session.LevelError, MsgUserNotFound, routes.Register)
		return
	case errors.Is(err, domain.ErrDispatchFailed):
		httputil.Error(w, http.StatusBadGateway, ErrorSendVerification)
		return
	default:
		h.logger.Error("otp resend failed", "user_id", userID, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "resend failed")
		return
	}

	pages.FlashRedirect(w, r, session.LevelSuccess, MsgOTPResent, routes.VerifyOTP)
}

func throttleMessage(wait time.Duration) string {
	minutes := int(wait.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Please wait at least %d minutes before requesting a new OTP.", minutes)
}
