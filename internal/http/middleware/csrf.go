package middleware

import (
	"crypto/sha256"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/tendant/simple-idm-otp/internal/config"
	"github.com/tendant/simple-idm-otp/internal/httputil"
	"golang.org/x/crypto/hkdf"
)

const (
	// CSRFHeader carries the token on requests and on every response.
	CSRFHeader = "X-CSRF-Token"
	// CSRFField is the form field holding the token.
	CSRFField = "csrfmiddlewaretoken"
	// CSRFCookieName names the cookie holding the signed secret.
	CSRFCookieName = "csrftoken"
)

// CSRFKey derives the 32 byte CSRF authentication key from the application
// secret.
func CSRFKey(secret string) []byte {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("simple-idm-otp csrf"))
	if _, err := io.ReadFull(r, key); err != nil {
		panic(err)
	}
	return key
}

// CSRF rejects unsafe requests without a valid token with 403. The token
// of the current request is exposed in the X-CSRF-Token response header
// and through CSRFToken. With protection disabled requests pass through.
// Set secure when the site is served over TLS; Referer checks are skipped
// otherwise.
func CSRF(cfg config.CSRFConfig, key []byte, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	protect := csrf.Protect(key,
		csrf.Secure(secure),
		csrf.HttpOnly(true),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.CookieName(CSRFCookieName),
		csrf.FieldName(CSRFField),
		csrf.RequestHeader(CSRFHeader),
		csrf.TrustedOrigins(cfg.TrustedOrigins),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("csrf check failed",
				"method", r.Method,
				"path", r.URL.Path,
				"reason", csrf.FailureReason(r),
			)
			httputil.Error(w, http.StatusForbidden, "CSRF verification failed")
		})),
	)

	return func(next http.Handler) http.Handler {
		h := protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(CSRFHeader, csrf.Token(r))
			next.ServeHTTP(w, r)
		}))
		if secure {
			return h
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
}

// CSRFToken returns the masked token for the request, or "" when the
// request did not pass through CSRF.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}
