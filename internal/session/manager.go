package session

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/tendant/simple-idm-otp/internal/httputil"
)

// DefaultTTL is the lifetime of a session.
const DefaultTTL = 14 * 24 * time.Hour

// Config holds session manager configuration.
type Config struct {
	Cookie httputil.CookieConfig
	TTL    time.Duration
}

// Manager loads the session for each request and persists it before the
// response header goes out.
type Manager struct {
	sm     *scs.SessionManager
	logger *slog.Logger
}

// NewManager creates a session manager on top of store. A nil store keeps
// sessions in process memory.
func NewManager(store scs.Store, cfg Config, logger *slog.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Cookie.Name == "" {
		cfg.Cookie = httputil.DefaultCookieConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	sm := scs.New()
	if store != nil {
		sm.Store = store
	}
	sm.Lifetime = cfg.TTL
	sm.Cookie.Name = cfg.Cookie.Name
	sm.Cookie.Domain = cfg.Cookie.Domain
	sm.Cookie.Path = cfg.Cookie.Path
	sm.Cookie.Secure = cfg.Cookie.Secure
	sm.Cookie.SameSite = cfg.Cookie.SameSite
	sm.Cookie.HttpOnly = true
	sm.Cookie.Persist = true
	sm.ErrorFunc = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("session error", "error", err, "path", r.URL.Path)
		httputil.Error(w, http.StatusInternalServerError, "Internal server error")
	}

	return &Manager{sm: sm, logger: logger}
}

// Middleware loads the session, attaches it to the context and commits it
// when the handler writes its response.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return m.sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := &Session{ctx: r.Context(), sm: m.sm}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), sess)))
	}))
}
