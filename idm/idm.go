// Package idm provides a small web account library: registration gated by
// an emailed one-time password, link activation, login, logout and
// password reset.
//
// Setup:
//
//  1. Run migrations (cmd/migrate, or the SQL under internal/db/migrations)
//  2. Create an IDM instance and mount its handler
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	accounts, err := idm.New(idm.Config{
//	    DB:         db,
//	    SecretKey:  "your-secret-key-at-least-32-chars",
//	    AppBaseURL: "https://example.com",
//	    Mailer:     myMailer,
//	})
//	if err != nil {
//	    log.Fatal(err) // Will fail if migrations haven't been run
//	}
//	http.ListenAndServe(":8080", accounts.Handler())
//
// Without a database everything is kept in memory, which suits tests and
// demos:
//
//	accounts, err := idm.New(idm.Config{SecretKey: "your-secret-key-at-least-32-chars"})
package idm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/internal/config"
	httpserver "github.com/tendant/simple-idm-otp/internal/http"
	"github.com/tendant/simple-idm-otp/internal/http/middleware"
	"github.com/tendant/simple-idm-otp/internal/httputil"
	"github.com/tendant/simple-idm-otp/internal/notification"
	"github.com/tendant/simple-idm-otp/internal/session"
	"github.com/tendant/simple-idm-otp/pkg/auth"
	"github.com/tendant/simple-idm-otp/pkg/repository"
	"github.com/tendant/simple-idm-otp/pkg/repository/memory"
)

// Config holds the configuration for the IDM library.
type Config struct {
	// DB backs accounts and sessions with Postgres. When nil and Store is
	// nil, an in-memory store is used.
	DB *sql.DB

	// Store overrides the account store.
	Store auth.Store

	// Sessions overrides the session store. Defaults to Postgres when DB is
	// set, memory otherwise.
	Sessions scs.Store

	// Mailer delivers activation and reset emails (default: log only).
	Mailer auth.Mailer

	// SecretKey signs activation links (required, min 32 chars).
	SecretKey string

	// AppBaseURL prefixes activation links (default: "http://localhost:8080").
	AppBaseURL string

	// OTPTTL is the lifetime of a one-time password (default: 15 minutes).
	OTPTTL time.Duration

	// OTPResendWait is the minimum time between two codes (default: 5 minutes).
	OTPResendWait time.Duration

	// ActivationTTL is the lifetime of an activation link (default: 3 days).
	ActivationTTL time.Duration

	// SessionTTL is the idle lifetime of a session (default: 14 days).
	SessionTTL time.Duration

	// CookieName names the session cookie (default: "sessionid").
	CookieName string

	// CookieDomain sets the Domain attribute of the session cookie.
	CookieDomain string

	// CookieSecure sets the Secure flag on the session cookie.
	CookieSecure bool

	// DisableCSRF turns off the CSRF token check on form submissions. Only
	// for deployments where another layer already enforces it.
	DisableCSRF bool

	// MinPasswordLength is the shortest accepted password (default: 8).
	MinPasswordLength int

	// Logger is the structured logger (default: JSON to stdout).
	Logger *slog.Logger

	// Settings carries the environment configuration of the bundled server.
	// Library users can leave it nil; rate limiting and security headers
	// are then off.
	Settings *config.Config
}

// IDM is the main identity management instance.
type IDM struct {
	config   Config
	accounts *auth.AccountService
	sessions *session.Manager
	handler  http.Handler
}

// New creates a new IDM instance with the given configuration.
// Returns an error if DB is set and the required tables don't exist.
func New(cfg Config) (*IDM, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if cfg.Store == nil {
		if cfg.DB != nil {
			if err := validateSchema(cfg.DB); err != nil {
				return nil, err
			}
			cfg.Store = repository.NewStore(cfg.DB)
		} else {
			cfg.Store = memory.NewStore()
		}
	}
	if cfg.Sessions == nil {
		if cfg.DB != nil {
			cfg.Sessions = session.NewPostgresStore(cfg.DB, 5*time.Minute)
		} else {
			cfg.Sessions = session.NewMemoryStore()
		}
	}

	policy := &auth.PasswordPolicy{MinLength: cfg.MinPasswordLength}
	var account auth.AccountConfig
	routerCfg := httpserver.RouterConfig{
		Logger:       cfg.Logger,
		CookieSecure: cfg.CookieSecure,
		CSRF:         config.CSRFConfig{Enabled: !cfg.DisableCSRF},
		CSRFKey:      middleware.CSRFKey(cfg.SecretKey),
	}
	if s := cfg.Settings; s != nil {
		policy = auth.NewPasswordPolicy(s.PasswordPolicy)
		account.StrictEmailValidation = s.Validation.StrictEmailValidation
		account.BlockDisposableEmail = s.Validation.BlockDisposableEmail
		routerCfg.CheckFingerprint = s.Session.Fingerprint
		routerCfg.CSRF = s.CSRF
		routerCfg.CSRF.Enabled = s.CSRF.Enabled && !cfg.DisableCSRF
		routerCfg.RateLimit = s.RateLimit
		routerCfg.SecurityHeaders = s.SecurityHeaders
		routerCfg.Validation = s.Validation
		routerCfg.StaticDir = s.StaticDir
		routerCfg.MediaDir = s.MediaDir
	}
	account.AppBaseURL = cfg.AppBaseURL

	otps := auth.NewOTPService(cfg.Store, auth.OTPConfig{
		TTL:        cfg.OTPTTL,
		ResendWait: cfg.OTPResendWait,
	})
	accounts := auth.NewAccountService(
		cfg.Logger,
		cfg.Store,
		auth.NewPasswordService(cfg.Store, policy),
		otps,
		auth.NewActivationTokenService([]byte(cfg.SecretKey), cfg.ActivationTTL),
		cfg.Mailer,
		account,
	)

	cookie := httputil.DefaultCookieConfig()
	cookie.Name = cfg.CookieName
	cookie.Domain = cfg.CookieDomain
	cookie.Secure = cfg.CookieSecure
	sessions := session.NewManager(cfg.Sessions, session.Config{Cookie: cookie, TTL: cfg.SessionTTL}, cfg.Logger)

	routerCfg.Accounts = accounts
	routerCfg.Sessions = sessions

	return &IDM{
		config:   cfg,
		accounts: accounts,
		sessions: sessions,
		handler:  httpserver.NewRouter(routerCfg),
	}, nil
}

// Handler returns the http.Handler serving every account page.
//
// Routes:
//
//	GET      /                         - Home
//	GET|POST /register                 - Register an inactive account
//	GET      /activate/{uid}/{token}   - Activate by emailed link
//	GET|POST /verify-otp               - Verify the emailed code
//	GET|POST /resend-otp               - Send a fresh code
//	GET|POST /forgot-password          - Request a password reset code
//	GET|POST /forgot-password/verify   - Set a new password
//	GET|POST /login                    - Login with username or email
//	GET|POST /logout                   - Logout
//	GET      /dashboard                - Signed-in account page
//	GET      /health                   - Health check
func (i *IDM) Handler() http.Handler {
	return i.handler
}

// Accounts returns the account service for advanced usage.
func (i *IDM) Accounts() *auth.AccountService {
	return i.accounts
}

// GetUserID extracts the signed-in user id from a request served by Handler.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	return middleware.GetUserID(r.Context())
}

// User represents basic user info returned by GetUser.
type User struct {
	ID            string
	Username      string
	Email         string
	DisplayName   string
	Active        bool
	EmailVerified bool
}

// GetUser loads a user and the verification state of its email.
func (i *IDM) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := i.accounts.User(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := i.accounts.Profile(ctx, id)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:            u.ID.String(),
		Username:      u.Username,
		Email:         u.Email,
		DisplayName:   p.DisplayName,
		Active:        u.Active,
		EmailVerified: p.EmailVerified,
	}, nil
}

func validateConfig(cfg *Config) error {
	if cfg.SecretKey == "" {
		return errors.New("idm: SecretKey is required")
	}
	if len(cfg.SecretKey) < config.MinSecretKeyLength {
		return fmt.Errorf("idm: SecretKey must be at least %d characters", config.MinSecretKeyLength)
	}
	if cfg.OTPTTL < 0 || cfg.OTPResendWait < 0 || cfg.ActivationTTL < 0 || cfg.SessionTTL < 0 {
		return errors.New("idm: durations must not be negative")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.AppBaseURL == "" {
		cfg.AppBaseURL = "http://localhost:8080"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = httputil.DefaultSessionCookieName
	}
	if cfg.MinPasswordLength == 0 {
		cfg.MinPasswordLength = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if cfg.Mailer == nil {
		cfg.Mailer = notification.NewLogMailer(cfg.Logger)
	}
}

// validateSchema checks that required database tables exist.
func validateSchema(db *sql.DB) error {
	requiredTables := []string{"users", "user_password", "profiles", "sessions"}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	`

	for _, table := range requiredTables {
		var name string
		err := db.QueryRow(query, table).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("idm: missing table '%s' - run migrations first", table)
		}
		if err != nil {
			return fmt.Errorf("idm: failed to check schema: %w", err)
		}
	}

	return nil
}
