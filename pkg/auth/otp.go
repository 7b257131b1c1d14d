package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// Defaults for one-time passwords.
const (
	DefaultOTPDigits     = otp.DigitsSix
	DefaultOTPTTL        = 15 * time.Minute
	DefaultOTPResendWait = 5 * time.Minute
)

// OTPConfig holds one-time password settings.
type OTPConfig struct {
	Digits     otp.Digits
	TTL        time.Duration
	ResendWait time.Duration
}

// GenerateCode draws a uniform code in [0, 10^digits) from r and zero pads it.
func GenerateCode(r io.Reader, digits otp.Digits) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits.Length())), nil)
	n, err := rand.Int(r, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return digits.Format(int32(n.Int64())), nil
}

// OTPService issues and checks one-time passwords stored on the profile.
type OTPService struct {
	profiles ProfileStore
	config   OTPConfig
	now      Clock
	generate func() (string, error)
}

// OTPOption configures an OTPService.
type OTPOption func(*OTPService)

// WithClock overrides the time source.
func WithClock(now Clock) OTPOption {
	return func(s *OTPService) { s.now = now }
}

// WithCodeGenerator overrides code generation.
func WithCodeGenerator(gen func() (string, error)) OTPOption {
	return func(s *OTPService) { s.generate = gen }
}

// NewOTPService creates a new OTP service.
func NewOTPService(profiles ProfileStore, config OTPConfig, opts ...OTPOption) *OTPService {
	if config.Digits == 0 {
		config.Digits = DefaultOTPDigits
	}
	if config.TTL == 0 {
		config.TTL = DefaultOTPTTL
	}
	if config.ResendWait == 0 {
		config.ResendWait = DefaultOTPResendWait
	}

	s := &OTPService{
		profiles: profiles,
		config:   config,
		now:      time.Now,
	}
	s.generate = func() (string, error) { return GenerateCode(rand.Reader, s.config.Digits) }
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *OTPService) Config() OTPConfig {
	return s.config
}

func (s *OTPService) challenge(purpose domain.OTPPurpose) (domain.OTPChallenge, error) {
	code, err := s.generate()
	if err != nil {
		return domain.OTPChallenge{}, err
	}
	now := s.now()
	return domain.OTPChallenge{
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(s.config.TTL),
		SentAt:    now,
	}, nil
}

// Issue replaces any outstanding code with a fresh one. The profile is
// created if missing.
func (s *OTPService) Issue(ctx context.Context, userID uuid.UUID, purpose domain.OTPPurpose) (domain.OTPChallenge, error) {
	if _, err := s.profiles.GetOrCreateProfile(ctx, userID); err != nil {
		return domain.OTPChallenge{}, err
	}
	ch, err := s.challenge(purpose)
	if err != nil {
		return domain.OTPChallenge{}, err
	}
	if err := s.profiles.SaveOTP(ctx, userID, ch); err != nil {
		return domain.OTPChallenge{}, fmt.Errorf("save otp: %w", err)
	}
	return ch, nil
}

// Resend issues a fresh code unless one was sent within the resend wait,
// in which case it returns a *domain.ThrottleError and changes nothing.
func (s *OTPService) Resend(ctx context.Context, userID uuid.UUID, purpose domain.OTPPurpose) (domain.OTPChallenge, error) {
	profile, err := s.profiles.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return domain.OTPChallenge{}, err
	}
	if remaining := profile.ResendRemaining(s.now(), s.config.ResendWait); remaining > 0 {
		return domain.OTPChallenge{}, &domain.ThrottleError{Wait: s.config.ResendWait, Remaining: remaining}
	}

	ch, err := s.challenge(purpose)
	if err != nil {
		return domain.OTPChallenge{}, err
	}
	if err := s.profiles.SaveOTPIfIdle(ctx, userID, ch, s.config.ResendWait); err != nil {
		return domain.OTPChallenge{}, err
	}
	return ch, nil
}

// Check validates code against the profile without consuming it. The order
// is match, then expiry, then purpose.
func (s *OTPService) Check(profile *domain.Profile, code string, purpose domain.OTPPurpose) error {
	if !profile.MatchesOTP(code) || profile.OTPUsed {
		return domain.ErrOTPInvalid
	}
	if profile.IsOTPExpired(s.now()) {
		return domain.ErrOTPExpired
	}
	if profile.OTPPurpose != purpose {
		return domain.ErrOTPInvalid
	}
	return nil
}

// Now returns the service clock's current time.
func (s *OTPService) Now() time.Time {
	return s.now()
}
