package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tendant/simple-idm-otp/internal/httputil"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(NewMemoryStore(), Config{Cookie: httputil.DefaultCookieConfig()}, nil)
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == httputil.DefaultSessionCookieName {
			return c
		}
	}
	return nil
}

func TestManager_UntouchedSessionSetsNoCookie(t *testing.T) {
	rec := inRequest(t, newTestManager(t), nil, func(s *Session) {
		if s == nil {
			t.Error("session missing from context")
		}
	})
	if c := sessionCookie(rec); c != nil {
		t.Errorf("unexpected cookie %v", c)
	}
}

func TestManager_PersistsAcrossRequests(t *testing.T) {
	m := newTestManager(t)

	set := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Set(KeyPendingUserID, "u1")
		httputil.Redirect(w, r, "/verify-otp")
	}))
	rec := httptest.NewRecorder()
	set.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", nil))

	c := sessionCookie(rec)
	if c == nil {
		t.Fatal("expected session cookie on redirect")
	}
	if !c.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie SameSite=%v Path=%q, want Lax and /", c.SameSite, c.Path)
	}

	var got string
	inRequest(t, m, c, func(s *Session) {
		got, _ = s.Get(KeyPendingUserID)
	})
	if got != "u1" {
		t.Errorf("pending user = %q, want u1", got)
	}
}

func TestManager_CommitWithoutWrite(t *testing.T) {
	rec := inRequest(t, newTestManager(t), nil, func(s *Session) {
		s.AddFlash(LevelInfo, "hi")
	})
	if sessionCookie(rec) == nil {
		t.Error("expected cookie when handler writes nothing")
	}
}

func TestManager_RenewIDKeepsValues(t *testing.T) {
	m := newTestManager(t)
	old := sessionCookie(inRequest(t, m, nil, func(s *Session) { s.Set(KeyPendingUserID, "u1") }))

	rec := inRequest(t, m, old, func(s *Session) {
		if err := s.RenewID(); err != nil {
			t.Fatalf("RenewID() error = %v", err)
		}
		s.Set(KeyUserID, "u1")
	})

	c := sessionCookie(rec)
	if c == nil || c.Value == old.Value {
		t.Fatalf("expected a rotated session token, got %v", c)
	}

	var stale bool
	inRequest(t, m, old, func(s *Session) { _, stale = s.Get(KeyPendingUserID) })
	if stale {
		t.Error("old token should no longer load a session")
	}

	var pending, user string
	inRequest(t, m, c, func(s *Session) {
		pending, _ = s.Get(KeyPendingUserID)
		user, _ = s.Get(KeyUserID)
	})
	if pending != "u1" || user != "u1" {
		t.Errorf("renewed session = pending %q user %q, want u1/u1", pending, user)
	}
}

func TestManager_ClearExpiresCookie(t *testing.T) {
	m := newTestManager(t)
	old := sessionCookie(inRequest(t, m, nil, func(s *Session) { s.Set(KeyUserID, "u1") }))

	rec := inRequest(t, m, old, func(s *Session) {
		if err := s.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
	})

	c := sessionCookie(rec)
	if c == nil || c.MaxAge >= 0 {
		t.Errorf("expected cookie to be cleared, got %v", c)
	}

	var found bool
	inRequest(t, m, old, func(s *Session) { _, found = s.Get(KeyUserID) })
	if found {
		t.Error("cleared session still loads")
	}
}

func TestManager_UnknownCookieStartsFresh(t *testing.T) {
	var id string
	forged := &http.Cookie{Name: httputil.DefaultSessionCookieName, Value: "forged"}
	inRequest(t, newTestManager(t), forged, func(s *Session) { id = s.ID() })

	if id != "" {
		t.Errorf("ID() = %q, want empty for unknown cookie", id)
	}
}

func TestManager_CustomCookie(t *testing.T) {
	cookie := httputil.DefaultCookieConfig()
	cookie.Name = "idm"
	cookie.Secure = true
	m := NewManager(NewMemoryStore(), Config{Cookie: cookie, TTL: time.Hour}, nil)

	rec := inRequest(t, m, nil, func(s *Session) { s.Set(KeyUserID, "u1") })

	var got *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "idm" {
			got = c
		}
	}
	if got == nil {
		t.Fatal("expected cookie named idm")
	}
	if !got.Secure {
		t.Error("cookie should be Secure")
	}
	if got.MaxAge <= 0 || got.MaxAge > int(time.Hour.Seconds())+1 {
		t.Errorf("MaxAge = %d, want within one hour", got.MaxAge)
	}
}

type failingStore struct{}

func (failingStore) Find(string) ([]byte, bool, error) {
	return nil, false, errors.New("store unavailable")
}

func (failingStore) Commit(string, []byte, time.Time) error {
	return errors.New("store unavailable")
}

func (failingStore) Delete(string) error {
	return errors.New("store unavailable")
}

func TestManager_StoreErrorIs500(t *testing.T) {
	m := NewManager(failingStore{}, Config{}, nil)
	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: httputil.DefaultSessionCookieName, Value: "abc"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Error("handler should not run when the session cannot be loaded")
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "error") {
		t.Errorf("body = %q, want a JSON error", rec.Body.String())
	}
}
