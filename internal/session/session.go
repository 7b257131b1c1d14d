// Package session keeps server-side web sessions referenced by an HttpOnly
// cookie, with one-shot flash messages. Storage and cookie handling are
// delegated to scs.
package session

import (
	"context"
	"encoding/gob"

	"github.com/alexedwards/scs/v2"
)

// Well-known session keys.
const (
	// KeyUserID holds the authenticated user id.
	KeyUserID = "_auth_user_id"
	// KeyPendingUserID marks a user who still has to enter a registration OTP.
	KeyPendingUserID = "pending_user_id"
	// KeyPendingResetUserID marks a user in the middle of a password reset.
	KeyPendingResetUserID = "pending_reset_user_id"

	keyFlashes = "_messages"
)

// Flash levels.
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Flash is a message shown once on the next rendered page.
type Flash struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func init() {
	gob.Register([]Flash{})
}

// Session is the per-request view of the scs session data. It is bound to
// the request context it was created for.
type Session struct {
	ctx context.Context
	sm  *scs.SessionManager
}

// ID returns the current session token. It is empty for a new session until
// the response is written.
func (s *Session) ID() string {
	return s.sm.Token(s.ctx)
}

// Get returns a value.
func (s *Session) Get(key string) (string, bool) {
	if !s.sm.Exists(s.ctx, key) {
		return "", false
	}
	return s.sm.GetString(s.ctx, key), true
}

// Set stores a value. Setting an unchanged value leaves the session
// unmodified, so no cookie is written for it.
func (s *Session) Set(key, value string) {
	if cur, ok := s.Get(key); ok && cur == value {
		return
	}
	s.sm.Put(s.ctx, key, value)
}

// Pop removes a value and returns it.
func (s *Session) Pop(key string) (string, bool) {
	if !s.sm.Exists(s.ctx, key) {
		return "", false
	}
	return s.sm.PopString(s.ctx, key), true
}

// AddFlash queues a message for the next page.
func (s *Session) AddFlash(level, text string) {
	queued, _ := s.sm.Get(s.ctx, keyFlashes).([]Flash)
	queued = append(queued[:len(queued):len(queued)], Flash{Level: level, Text: text})
	s.sm.Put(s.ctx, keyFlashes, queued)
}

// Flashes returns and clears the queued messages.
func (s *Session) Flashes() []Flash {
	out, _ := s.sm.Pop(s.ctx, keyFlashes).([]Flash)
	if out == nil {
		out = []Flash{}
	}
	return out
}

// RenewID issues a fresh session token, keeping the data. Used on login so
// a pre-login token can never carry an authenticated session.
func (s *Session) RenewID() error {
	return s.sm.RenewToken(s.ctx)
}

// Clear deletes the stored session. Values put afterwards start a new
// session under a new token.
func (s *Session) Clear() error {
	return s.sm.Destroy(s.ctx)
}

type contextKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request session. It is nil outside Manager.Middleware.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
