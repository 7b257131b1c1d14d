package domain

import (
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
)

// OTPPurpose identifies the flow an outstanding one-time password belongs to.
type OTPPurpose string

const (
	OTPPurposeRegistration  OTPPurpose = "registration"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
)

// Valid reports whether p is a known purpose.
func (p OTPPurpose) Valid() bool {
	return p == OTPPurposeRegistration || p == OTPPurposePasswordReset
}

// Profile extends a user one-to-one with verification status and the
// current OTP challenge.
type Profile struct {
	UserID        uuid.UUID
	DisplayName   string
	EmailVerified bool
	OTPCode       *string
	OTPPurpose    OTPPurpose
	OTPExpiresAt  *time.Time
	OTPUsed       bool
	LastOTPSentAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OTPChallenge is a freshly issued code and its lifetime.
type OTPChallenge struct {
	Code      string
	Purpose   OTPPurpose
	ExpiresAt time.Time
	SentAt    time.Time
}

// MatchesOTP compares code with the stored code by exact string equality
// in constant time. Expiry and used state are not considered.
func (p *Profile) MatchesOTP(code string) bool {
	return p.OTPCode != nil && subtle.ConstantTimeCompare([]byte(*p.OTPCode), []byte(code)) == 1
}

// IsOTPExpired is true when no expiry is recorded or it lies before now.
func (p *Profile) IsOTPExpired(now time.Time) bool {
	return p.OTPExpiresAt == nil || now.After(*p.OTPExpiresAt)
}

// HasOutstandingOTP reports whether an unconsumed, unexpired code exists.
func (p *Profile) HasOutstandingOTP(now time.Time) bool {
	return p.OTPCode != nil && !p.OTPUsed && !p.IsOTPExpired(now)
}

// ApplyOTP replaces any previous challenge with ch.
func (p *Profile) ApplyOTP(ch OTPChallenge) {
	code := ch.Code
	expires := ch.ExpiresAt
	sent := ch.SentAt
	p.OTPCode = &code
	p.OTPPurpose = ch.Purpose
	p.OTPExpiresAt = &expires
	p.OTPUsed = false
	p.LastOTPSentAt = &sent
}

// ConsumeOTP marks the challenge used and forgets the code so it can never
// match again.
func (p *Profile) ConsumeOTP() {
	p.OTPUsed = true
	p.OTPCode = nil
}

// ResendRemaining returns how much of wait is left since the last issuance.
// Zero means a new code may be issued.
func (p *Profile) ResendRemaining(now time.Time, wait time.Duration) time.Duration {
	if p.LastOTPSentAt == nil {
		return 0
	}
	elapsed := now.Sub(*p.LastOTPSentAt)
	if elapsed >= wait {
		return 0
	}
	return wait - elapsed
}
