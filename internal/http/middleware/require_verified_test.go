package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/internal/http/routes"
	"github.com/tendant/simple-idm-otp/internal/session"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

type profileLoaderFunc func(ctx context.Context, id uuid.UUID) (*domain.Profile, error)

func (f profileLoaderFunc) Profile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	return f(ctx, id)
}

func profiles(verified bool) ProfileLoader {
	return profileLoaderFunc(func(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
		return &domain.Profile{UserID: id, EmailVerified: verified}, nil
	})
}

type gateResult struct {
	code     int
	location string
	reached  bool
	pending  string
	flashes  []session.Flash
}

// runGate sends a request through session, identity and gate middleware
// with the route tagged by tag.
func runGate(t *testing.T, loader ProfileLoader, user *domain.User, tag func(http.Handler) http.Handler, path string) gateResult {
	t.Helper()
	var res gateResult
	var sess *session.Session

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res.reached = true
		w.WriteHeader(http.StatusOK)
	})
	gate := RequireVerifiedEmail(loader, slog.Default())(inner)
	if tag != nil {
		gate = tag(gate)
	}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess = session.FromContext(r.Context())
		ctx := r.Context()
		if user != nil {
			ctx = WithUser(ctx, user)
		}
		gate.ServeHTTP(w, r.WithContext(ctx))
	})

	mgr := session.NewManager(session.NewMemoryStore(), session.Config{}, slog.Default())
	rec := httptest.NewRecorder()
	mgr.Middleware(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	res.code = rec.Code
	res.location = rec.Header().Get("Location")
	res.pending, _ = sess.Get(session.KeyPendingUserID)
	res.flashes = sess.Flashes()
	return res
}

func TestRequireVerifiedEmail(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Username: "alice", Active: true}

	tests := []struct {
		name        string
		user        *domain.User
		verified    bool
		tag         func(http.Handler) http.Handler
		path        string
		wantReached bool
		wantPending bool
		wantFlash   bool
	}{
		{
			name:        "anonymous passes",
			user:        nil,
			tag:         routes.Tag(routes.Dashboard),
			path:        "/dashboard",
			wantReached: true,
		},
		{
			name:        "verified passes",
			user:        user,
			verified:    true,
			tag:         routes.Tag(routes.Dashboard),
			path:        "/dashboard",
			wantReached: true,
		},
		{
			name:        "unverified redirected from dashboard",
			user:        user,
			tag:         routes.Tag(routes.Dashboard),
			path:        "/dashboard",
			wantPending: true,
			wantFlash:   true,
		},
		{
			name:        "unverified redirected from unrouted path",
			user:        user,
			tag:         nil,
			path:        "/nowhere",
			wantPending: true,
			wantFlash:   true,
		},
		{
			name:        "unverified may reach login",
			user:        user,
			tag:         routes.Tag(routes.Login),
			path:        "/login",
			wantReached: true,
		},
		{
			name:        "unverified reaching verify-otp gets marker",
			user:        user,
			tag:         routes.Tag(routes.VerifyOTP),
			path:        "/verify-otp",
			wantReached: true,
			wantPending: true,
		},
		{
			name:        "static namespace is exempt",
			user:        user,
			tag:         routes.TagNamespace(routes.NamespaceStatic),
			path:        "/static/site.css",
			wantReached: true,
		},
		{
			name:        "admin namespace is exempt",
			user:        user,
			tag:         routes.TagNamespace(routes.NamespaceAdmin),
			path:        "/admin/",
			wantReached: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runGate(t, profiles(tt.verified), tt.user, tt.tag, tt.path)

			if res.reached != tt.wantReached {
				t.Fatalf("reached = %v, want %v", res.reached, tt.wantReached)
			}
			if !tt.wantReached {
				if res.code != http.StatusSeeOther || res.location != "/verify-otp" {
					t.Errorf("got %d -> %q, want 303 -> /verify-otp", res.code, res.location)
				}
			}
			if got := res.pending != ""; got != tt.wantPending {
				t.Errorf("pending marker set = %v, want %v", got, tt.wantPending)
			}
			if tt.wantPending && res.pending != tt.user.ID.String() {
				t.Errorf("pending marker = %q, want %q", res.pending, tt.user.ID)
			}
			gotFlash := len(res.flashes) == 1 && res.flashes[0].Level == session.LevelWarning && res.flashes[0].Text == VerifyEmailWarning
			if gotFlash != tt.wantFlash {
				t.Errorf("flashes = %+v, want warning = %v", res.flashes, tt.wantFlash)
			}
		})
	}
}

func TestRequireVerifiedEmail_NoFlashOnVerifyPath(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Active: true}

	// Untagged request on the verify-otp path: redirect, no warning.
	res := runGate(t, profiles(false), user, nil, "/verify-otp")

	if res.reached || res.code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.code)
	}
	if len(res.flashes) != 0 {
		t.Errorf("flashes = %+v, want none", res.flashes)
	}
	if res.pending == "" {
		t.Error("pending marker should be set")
	}
}

func TestRequireVerifiedEmail_ProfileErrors(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Active: true}

	notFound := profileLoaderFunc(func(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
		return nil, domain.ErrUserNotFound
	})
	res := runGate(t, notFound, user, routes.Tag(routes.Dashboard), "/dashboard")
	if !res.reached {
		t.Error("not-found profile should pass through")
	}

	broken := profileLoaderFunc(func(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
		return nil, errors.New("connection refused")
	})
	res = runGate(t, broken, user, routes.Tag(routes.Dashboard), "/dashboard")
	if res.reached || res.code != http.StatusInternalServerError {
		t.Errorf("got reached=%v code=%d, want 500", res.reached, res.code)
	}
}
