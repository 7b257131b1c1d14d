package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-idm-otp/internal/config"
	"github.com/tendant/simple-idm-otp/internal/http/features/email"
	"github.com/tendant/simple-idm-otp/internal/http/features/me"
	"github.com/tendant/simple-idm-otp/internal/http/features/pages"
	"github.com/tendant/simple-idm-otp/internal/http/features/password"
	"github.com/tendant/simple-idm-otp/internal/http/features/session"
	"github.com/tendant/simple-idm-otp/internal/http/middleware"
	"github.com/tendant/simple-idm-otp/internal/http/routes"
	"github.com/tendant/simple-idm-otp/internal/httputil"
	websession "github.com/tendant/simple-idm-otp/internal/session"
	"github.com/tendant/simple-idm-otp/pkg/auth"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger           *slog.Logger
	Accounts         *auth.AccountService
	Sessions         *websession.Manager
	CheckFingerprint bool
	CookieSecure     bool
	CSRF             config.CSRFConfig
	CSRFKey          []byte
	RateLimit        config.RateLimitConfig
	SecurityHeaders  config.SecurityHeadersConfig
	Validation       config.ValidationConfig
	StaticDir        string
	MediaDir         string
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	limiters := middleware.CreateRateLimiters(cfg.RateLimit, cfg.Logger)
	gate := middleware.RequireVerifiedEmail(cfg.Accounts, cfg.Logger)

	pagesHandler := pages.NewHandler()
	passwordHandler := password.NewHandler(cfg.Logger, cfg.Accounts)
	emailHandler := email.NewHandler(cfg.Logger, cfg.Accounts)
	sessionHandler := session.NewHandler(cfg.Logger)
	meHandler := me.NewHandler(cfg.Logger, cfg.Accounts)

	identity := middleware.LoadIdentity(cfg.Accounts, cfg.Logger, cfg.CheckFingerprint)
	csrf := middleware.CSRF(cfg.CSRF, cfg.CSRFKey, cfg.CookieSecure, cfg.Logger)
	notFound := func(w http.ResponseWriter, r *http.Request) {
		httputil.Error(w, http.StatusNotFound, "not found")
	}

	r.Group(func(r chi.Router) {
		r.Use(cfg.Sessions.Middleware)
		r.Use(csrf)
		r.Use(identity)

		// named returns the middleware chain of a named route
		named := func(n routes.Name, limiter string) chi.Router {
			return r.With(routes.Tag(n), gate, limiters[limiter])
		}

		named(routes.Home, middleware.LimitPage).Get(routes.Pattern(routes.Home), pagesHandler.Home)

		named(routes.Register, middleware.LimitPage).Get(routes.Pattern(routes.Register), passwordHandler.RegisterPage)
		named(routes.Register, middleware.LimitAuth).Post(routes.Pattern(routes.Register), passwordHandler.Register)

		named(routes.Activate, middleware.LimitVerify).Get(routes.Pattern(routes.Activate), emailHandler.Activate)

		named(routes.VerifyOTP, middleware.LimitPage).Get(routes.Pattern(routes.VerifyOTP), emailHandler.VerifyOTPPage)
		named(routes.VerifyOTP, middleware.LimitVerify).Post(routes.Pattern(routes.VerifyOTP), emailHandler.VerifyOTP)

		named(routes.ResendOTP, middleware.LimitPage).Get(routes.Pattern(routes.ResendOTP), emailHandler.ResendOTPPage)
		named(routes.ResendOTP, middleware.LimitVerify).Post(routes.Pattern(routes.ResendOTP), emailHandler.ResendOTP)

		named(routes.ForgotPassword, middleware.LimitPage).Get(routes.Pattern(routes.ForgotPassword), passwordHandler.ForgotPasswordPage)
		named(routes.ForgotPassword, middleware.LimitReset).Post(routes.Pattern(routes.ForgotPassword), passwordHandler.ForgotPassword)

		named(routes.PasswordResetVerify, middleware.LimitPage).Get(routes.Pattern(routes.PasswordResetVerify), passwordHandler.ResetPasswordPage)
		named(routes.PasswordResetVerify, middleware.LimitReset).Post(routes.Pattern(routes.PasswordResetVerify), passwordHandler.ResetPassword)

		named(routes.Login, middleware.LimitPage).Get(routes.Pattern(routes.Login), passwordHandler.LoginPage)
		named(routes.Login, middleware.LimitAuth).Post(routes.Pattern(routes.Login), passwordHandler.Login)

		named(routes.Logout, middleware.LimitPage).Get(routes.Pattern(routes.Logout), sessionHandler.Logout)
		named(routes.Logout, middleware.LimitPage).Post(routes.Pattern(routes.Logout), sessionHandler.Logout)

		named(routes.Dashboard, middleware.LimitPage).With(middleware.RequireLogin).Get(routes.Pattern(routes.Dashboard), meHandler.Dashboard)

		// Nothing is served under /admin yet. The namespace stays reachable
		// for unverified users like static and media.
		r.With(routes.TagNamespace(routes.NamespaceAdmin), gate).
			HandleFunc(routes.Prefix(routes.NamespaceAdmin)+"/*", notFound)

		mountFiles(r, routes.NamespaceStatic, cfg.StaticDir, gate)
		mountFiles(r, routes.NamespaceMedia, cfg.MediaDir, gate)
	})

	r.With(cfg.Sessions.Middleware, csrf, identity, gate).NotFound(notFound)

	return r
}

// mountFiles serves dir under the namespace prefix. An empty dir mounts
// nothing.
func mountFiles(r chi.Router, ns routes.Namespace, dir string, gate func(http.Handler) http.Handler) {
	if dir == "" {
		return
	}
	prefix := routes.Prefix(ns)
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	r.With(routes.TagNamespace(ns), gate).Handle(prefix+"/*", files)
}
