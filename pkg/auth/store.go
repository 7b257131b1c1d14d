package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// UserStore is the credential store: users and their password hashes.
type UserStore interface {
	CreateAccount(ctx context.Context, user *domain.User, pwd *domain.UserPassword, profile *domain.Profile) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByLogin(ctx context.Context, identifier string) (*domain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	GetPassword(ctx context.Context, userID uuid.UUID) (*domain.UserPassword, error)
	ActivateUser(ctx context.Context, id uuid.UUID) error
	RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) error
	RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ProfileStore persists profiles and their OTP challenge. Consume methods
// must be atomic compare-and-set operations on the stored code.
type ProfileStore interface {
	GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	SaveOTP(ctx context.Context, userID uuid.UUID, ch domain.OTPChallenge) error
	SaveOTPIfIdle(ctx context.Context, userID uuid.UUID, ch domain.OTPChallenge, wait time.Duration) error
	ConsumeRegistrationOTP(ctx context.Context, userID uuid.UUID, code string, at time.Time) error
	ConsumeResetOTP(ctx context.Context, userID uuid.UUID, code string, at time.Time, passwordHash string) error
}

// Store is implemented by repository.Store and memory.Store.
type Store interface {
	UserStore
	ProfileStore
}

// Mailer delivers account emails.
type Mailer interface {
	SendActivationEmail(ctx context.Context, to, username, activateURL, code string) error
	SendPasswordResetEmail(ctx context.Context, to, username, code string) error
}

// Clock returns the current time.
type Clock func() time.Time
