package password

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/internal/http/features/pages"
	"github.com/tendant/simple-idm-otp/internal/http/routes"
	"github.com/tendant/simple-idm-otp/internal/httputil"
	"github.com/tendant/simple-idm-otp/internal/session"
	"github.com/tendant/simple-idm-otp/pkg/auth"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// User-facing messages.
const (
	MsgAllFieldsRequired = "All fields are required."
	MsgPasswordMismatch  = "Passwords do not match."
	MsgInvalidUsername   = "Username must be 3-30 characters of letters, digits, underscores or hyphens, starting with a letter or digit."
	MsgNameTooLong       = "Names must be at most 150 characters."
	MsgInvalidEmail      = "Enter a valid email address."
	MsgUsernameTaken     = "Username already exists."
	MsgEmailTaken        = "Email already registered."
	MsgAccountCreated    = "Account created! Enter the OTP sent to your email to verify your account."

	MsgInvalidLogin  = "Invalid username or password."
	MsgAccountLocked = "Too many failed login attempts. Please try again later."
	MsgActivateFirst = "Please activate your account first."

	MsgEmailRequired   = "Please enter your email address."
	MsgResetCodeSent   = "If an account exists for that email, a reset code has been sent."
	MsgInvalidOTP      = "Invalid OTP code."
	MsgResetOTPExpired = "OTP has expired. Request a new code."
	MsgPasswordResetOK = "Your password has been reset. You can now log in."
)

// JSON error bodies for failed email delivery.
const (
	ErrorSendVerification = "failed to send verification email"
	ErrorSendReset        = "failed to send password reset email"
)

// Handler handles registration, login and password reset.
type Handler struct {
	logger   *slog.Logger
	accounts *auth.AccountService
}

// NewHandler creates a new password handler.
func NewHandler(logger *slog.Logger, accounts *auth.AccountService) *Handler {
	return &Handler{
		logger:   logger,
		accounts: accounts,
	}
}

// LoginRequest represents a login form.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// ForgotPasswordRequest represents a password reset request form.
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

// RegisterPage renders the registration form.
// GET /register
func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	pages.Render(w, r, http.StatusOK, pages.RegisterPage)
}

// Register creates an inactive account and sends the verification OTP.
// POST /register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := httputil.Bind(r, &req); err != nil {
		httputil.BindError(w, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), req)
	if err != nil && !errors.Is(err, domain.ErrDispatchFailed) {
		if msg, ok := registerMessage(err); ok {
			pages.FlashRedirect(w, r, session.LevelError, msg, routes.Register)
			return
		}
		h.logger.Error("registration failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	sess := session.FromContext(r.Context())
	sess.Set(session.KeyPendingUserID, user.ID.String())
	if err != nil {
		httputil.Error(w, http.StatusBadGateway, ErrorSendVerification)
		return
	}
	pages.FlashRedirect(w, r, session.LevelSuccess, MsgAccountCreated, routes.VerifyOTP)
}

func registerMessage(err error) (string, bool) {
	var policyErr *auth.PolicyError
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		return MsgAllFieldsRequired, true
	case errors.Is(err, domain.ErrPasswordMismatch):
		return MsgPasswordMismatch, true
	case errors.Is(err, domain.ErrInvalidUsername):
		return MsgInvalidUsername, true
	case errors.Is(err, domain.ErrInvalidName):
		return MsgNameTooLong, true
	case errors.Is(err, domain.ErrInvalidEmail):
		return MsgInvalidEmail, true
	case errors.Is(err, domain.ErrUsernameAlreadyExists):
		return MsgUsernameTaken, true
	case errors.Is(err, domain.ErrUserAlreadyExists):
		return MsgEmailTaken, true
	case errors.As(err, &policyErr):
		return policyErr.Reason, true
	}
	return "", false
}

// LoginPage renders the login form.
// GET /login
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	pages.Render(w, r, http.StatusOK, pages.LoginPage)
}

// Login authenticates by username or email and starts a session.
// POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.Bind(r, &req); err != nil {
		httputil.BindError(w, err)
		return
	}

	user, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			pages.FlashRedirect(w, r, session.LevelError, MsgInvalidLogin, routes.Login)
		case errors.Is(err, domain.ErrAccountLocked):
			pages.FlashRedirect(w, r, session.LevelError, MsgAccountLocked, routes.Login)
		case errors.Is(err, domain.ErrAccountInactive):
			pages.FlashRedirect(w, r, session.LevelError, MsgActivateFirst, routes.Login)
		default:
			h.logger.Error("login failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	sess := session.FromContext(r.Context())
	if err := sess.RenewID(); err != nil {
		h.logger.Error("failed to renew session", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "login failed")
		return
	}
	sess.Set(session.KeyUserID, user.ID.String())
	sess.BindFingerprint(r)
	h.logger.Info("user logged in", "user_id", user.ID)
	pages.FlashRedirect(w, r, session.LevelSuccess, welcome(user.Username), routes.Home)
}

func welcome(username string) string {
	return "Welcome, " + username + "!"
}

// ForgotPasswordPage renders the password reset request form.
// GET /forgot-password
func (h *Handler) ForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	pages.Render(w, r, http.StatusOK, pages.ForgotPasswordPage)
}

// ForgotPassword emails a password reset code. The answer is the same
// whether or not the email belongs to an account.
// POST /forgot-password
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := httputil.Bind(r, &req); err != nil {
		httputil.BindError(w, err)
		return
	}

	sess := session.FromContext(r.Context())
	user, err := h.accounts.RequestPasswordReset(r.Context(), req.Email)
	switch {
	case err == nil:
		sess.Set(session.KeyPendingResetUserID, user.ID.String())
	case errors.Is(err, domain.ErrMissingFields):
		pages.FlashRedirect(w, r, session.LevelError, MsgEmailRequired, routes.ForgotPassword)
		return
	case errors.Is(err, domain.ErrUserNotFound):
		h.logger.Info("password reset for unknown email")
	case errors.Is(err, domain.ErrOTPThrottled):
		h.logger.Info("password reset throttled", "error", err)
	case errors.Is(err, domain.ErrDispatchFailed):
		sess.Set(session.KeyPendingResetUserID, user.ID.String())
		httputil.Error(w, http.StatusBadGateway, ErrorSendReset)
		return
	default:
		h.logger.Error("password reset request failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "password reset failed")
		return
	}
	pages.FlashRedirect(w, r, session.LevelInfo, MsgResetCodeSent, routes.PasswordResetVerify)
}

// ResetPasswordPage renders the reset code and new password form.
// GET /forgot-password/verify
func (h *Handler) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	pages.Render(w, r, http.StatusOK, pages.PasswordResetVerifyPage)
}

// ResetPassword checks the reset code and sets the new password.
// POST /forgot-password/verify
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordInput
	if err := httputil.Bind(r, &req); err != nil {
		httputil.BindError(w, err)
		return
	}

	sess := session.FromContext(r.Context())
	raw, _ := sess.Get(session.KeyPendingResetUserID)
	userID, err := uuid.Parse(raw)
	if err != nil {
		pages.FlashRedirect(w, r, session.LevelError, MsgInvalidOTP, routes.PasswordResetVerify)
		return
	}

	err = h.accounts.ResetPassword(r.Context(), userID, req)
	if err != nil {
		var policyErr *auth.PolicyError
		switch {
		case errors.Is(err, domain.ErrMissingFields):
			pages.FlashRedirect(w, r, session.LevelError, MsgAllFieldsRequired, routes.PasswordResetVerify)
		case errors.Is(err, domain.ErrPasswordMismatch):
			pages.FlashRedirect(w, r, session.LevelError, MsgPasswordMismatch, routes.PasswordResetVerify)
		case errors.Is(err, domain.ErrOTPExpired):
			pages.FlashRedirect(w, r, session.LevelError, MsgResetOTPExpired, routes.PasswordResetVerify)
		case errors.Is(err, domain.ErrOTPInvalid):
			pages.FlashRedirect(w, r, session.LevelError, MsgInvalidOTP, routes.PasswordResetVerify)
		case errors.As(err, &policyErr):
			pages.FlashRedirect(w, r, session.LevelError, policyErr.Reason, routes.PasswordResetVerify)
		case errors.Is(err, domain.ErrUserNotFound):
			sess.Pop(session.KeyPendingResetUserID)
			pages.FlashRedirect(w, r, session.LevelError, MsgInvalidOTP, routes.PasswordResetVerify)
		default:
			h.logger.Error("password reset failed", "user_id", userID, "error", err)
			httputil.Error(w, http.StatusInternalServerError, "password reset failed")
		}
		return
	}

	sess.Pop(session.KeyPendingResetUserID)
	pages.FlashRedirect(w, r, session.LevelSuccess, MsgPasswordResetOK, routes.Login)
}
