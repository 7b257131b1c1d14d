package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// KeyFingerprint holds the device fingerprint bound at login.
const KeyFingerprint = "_auth_fingerprint"

// Fingerprint hashes the client address and User-Agent of r.
func Fingerprint(r *http.Request) string {
	sum := sha256.Sum256([]byte(clientIP(r) + "|" + r.UserAgent()))
	return hex.EncodeToString(sum[:])
}

// BindFingerprint ties the session to the device making r.
func (s *Session) BindFingerprint(r *http.Request) {
	s.Set(KeyFingerprint, Fingerprint(r))
}

// MatchesFingerprint reports whether r comes from the device bound at
// login. A session without a fingerprint matches any request.
func (s *Session) MatchesFingerprint(r *http.Request) bool {
	bound, ok := s.Get(KeyFingerprint)
	if !ok {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(bound), []byte(Fingerprint(r))) == 1
}

// clientIP prefers X-Forwarded-For, then X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
