package domain

import (
	"errors"
	"testing"
	"time"
)

func TestProfile_MatchesOTP(t *testing.T) {
	tests := []struct {
		name   string
		stored *string
		input  string
		want   bool
	}{
		{"exact match", stringPtr("123456"), "123456", true},
		{"different code", stringPtr("123456"), "654321", false},
		{"leading zeros kept", stringPtr("012345"), "12345", false},
		{"surrounding space", stringPtr("123456"), " 123456", false},
		{"longer input with stored prefix", stringPtr("123456"), "1234567", false},
		{"shorter input", stringPtr("123456"), "123", false},
		{"no stored code", nil, "123456", false},
		{"empty input", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{OTPCode: tt.stored}
			if got := p.MatchesOTP(tt.input); got != tt.want {
				t.Errorf("MatchesOTP(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestProfile_IsOTPExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(15 * time.Minute)

	tests := []struct {
		name      string
		expiresAt *time.Time
		at        time.Time
		want      bool
	}{
		{"no expiry recorded", nil, now, true},
		{"before expiry", &expires, now, false},
		{"at expiry", &expires, expires, false},
		{"after expiry", &expires, expires.Add(time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{OTPExpiresAt: tt.expiresAt}
			if got := p.IsOTPExpired(tt.at); got != tt.want {
				t.Errorf("IsOTPExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProfile_ApplyAndConsume(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := &Profile{}

	p.ApplyOTP(OTPChallenge{
		Code:      "000042",
		Purpose:   OTPPurposeRegistration,
		ExpiresAt: now.Add(15 * time.Minute),
		SentAt:    now,
	})

	if !p.HasOutstandingOTP(now) {
		t.Fatal("expected outstanding otp after apply")
	}
	if !p.MatchesOTP("000042") {
		t.Fatal("expected applied code to match")
	}
	if p.OTPPurpose != OTPPurposeRegistration {
		t.Errorf("OTPPurpose = %q, want %q", p.OTPPurpose, OTPPurposeRegistration)
	}

	p.ConsumeOTP()

	if p.HasOutstandingOTP(now) {
		t.Error("consumed otp must not be outstanding")
	}
	if p.MatchesOTP("000042") {
		t.Error("consumed otp must never match again")
	}
	if !p.OTPUsed {
		t.Error("OTPUsed should be true after consume")
	}
}

func TestProfile_ApplyReplacesPreviousCode(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := &Profile{}
	p.ApplyOTP(OTPChallenge{Code: "111111", Purpose: OTPPurposeRegistration, ExpiresAt: now.Add(time.Minute), SentAt: now})
	p.ConsumeOTP()
	p.ApplyOTP(OTPChallenge{Code: "222222", Purpose: OTPPurposeRegistration, ExpiresAt: now.Add(time.Minute), SentAt: now})

	if p.MatchesOTP("111111") {
		t.Error("old code must not match after reissue")
	}
	if !p.MatchesOTP("222222") || p.OTPUsed {
		t.Error("new code should be live and unused")
	}
}

func TestProfile_ResendRemaining(t *testing.T) {
	sent := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	wait := 5 * time.Minute

	tests := []struct {
		name string
		sent *time.Time
		at   time.Time
		want time.Duration
	}{
		{"never sent", nil, sent, 0},
		{"two minutes later", &sent, sent.Add(2 * time.Minute), 3 * time.Minute},
		{"exactly at wait", &sent, sent.Add(wait), 0},
		{"six minutes later", &sent, sent.Add(6 * time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{LastOTPSentAt: tt.sent}
			if got := p.ResendRemaining(tt.at, wait); got != tt.want {
				t.Errorf("ResendRemaining() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThrottleError_Is(t *testing.T) {
	err := error(&ThrottleError{Wait: 5 * time.Minute, Remaining: 3 * time.Minute})
	if !errors.Is(err, ErrOTPThrottled) {
		t.Error("ThrottleError should match ErrOTPThrottled")
	}
	if errors.Is(err, ErrOTPExpired) {
		t.Error("ThrottleError should not match ErrOTPExpired")
	}

	var te *ThrottleError
	if !errors.As(err, &te) || te.Remaining != 3*time.Minute {
		t.Errorf("errors.As failed or wrong remaining: %+v", te)
	}
}
