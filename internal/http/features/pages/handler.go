// Package pages renders page descriptors. Pages are JSON documents naming
// the page, its form fields and the flash messages queued for it.
package pages

import (
	"net/http"

	"github.com/tendant/simple-idm-otp/internal/http/middleware"
	"github.com/tendant/simple-idm-otp/internal/http/routes"
	"github.com/tendant/simple-idm-otp/internal/httputil"
	"github.com/tendant/simple-idm-otp/internal/session"
)

// Page is the descriptor of a rendered page.
type Page struct {
	Page     string          `json:"page"`
	Title    string          `json:"title"`
	Action   string          `json:"action,omitempty"`
	Fields   []string        `json:"fields,omitempty"`
	Messages []session.Flash `json:"messages"`
	User     *Viewer         `json:"user,omitempty"`
	Data     any             `json:"data,omitempty"`

	// CSRFToken must be echoed in the csrfmiddlewaretoken field or the
	// X-CSRF-Token header of the form submission.
	CSRFToken string `json:"csrf_token,omitempty"`
}

// Viewer is the signed-in user shown in the page chrome.
type Viewer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

var (
	HomePage = Page{Page: "home", Title: "Home"}

	RegisterPage = Page{
		Page:   "register",
		Title:  "Register",
		Action: routes.Path(routes.Register),
		Fields: []string{"first_name", "last_name", "username", "email", "password1", "password2"},
	}

	LoginPage = Page{
		Page:   "login",
		Title:  "Sign In",
		Action: routes.Path(routes.Login),
		Fields: []string{"username", "password"},
	}

	VerifyOTPPage = Page{
		Page:   "verify-otp",
		Title:  "Verify Email",
		Action: routes.Path(routes.VerifyOTP),
		Fields: []string{"otp"},
	}

	ForgotPasswordPage = Page{
		Page:   "forgot-password",
		Title:  "Reset Password",
		Action: routes.Path(routes.ForgotPassword),
		Fields: []string{"email"},
	}

	PasswordResetVerifyPage = Page{
		Page:   "password-reset-verify",
		Title:  "Set New Password",
		Action: routes.Path(routes.PasswordResetVerify),
		Fields: []string{"otp", "password1", "password2"},
	}

	ActivationInvalidPage = Page{Page: "activation-invalid", Title: "Invalid activation link"}

	DashboardPage = Page{Page: "dashboard", Title: "Dashboard"}
)

// Render writes p with the pending flash messages and the signed-in user.
func Render(w http.ResponseWriter, r *http.Request, status int, p Page) {
	p.Messages = []session.Flash{}
	if sess := session.FromContext(r.Context()); sess != nil {
		p.Messages = sess.Flashes()
	}
	if user, ok := middleware.GetUser(r.Context()); ok {
		p.User = &Viewer{ID: user.ID.String(), Username: user.Username}
	}
	p.CSRFToken = middleware.CSRFToken(r)
	httputil.JSON(w, status, p)
}

// Flash queues a message on the request session.
func Flash(r *http.Request, level, text string) {
	if sess := session.FromContext(r.Context()); sess != nil {
		sess.AddFlash(level, text)
	}
}

// FlashRedirect queues a message and redirects to a named route.
func FlashRedirect(w http.ResponseWriter, r *http.Request, level, text string, to routes.Name) {
	Flash(r, level, text)
	httputil.Redirect(w, r, routes.Path(to))
}

// Handler serves pages that need no service.
type Handler struct{}

// NewHandler creates a new pages handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Home renders the landing page.
// GET /
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	Render(w, r, http.StatusOK, HomePage)
}
