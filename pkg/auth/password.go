package auth

import (
	"context"
	"errors"
	"time"

	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// Lockout defaults.
const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

// PasswordService handles password hashing and authentication.
type PasswordService struct {
	users             UserStore
	policy            *PasswordPolicy
	maxFailedAttempts int
	lockoutDuration   time.Duration
	now               Clock
}

// NewPasswordService creates a new password service.
func NewPasswordService(users UserStore, policy *PasswordPolicy) *PasswordService {
	return &PasswordService{
		users:             users,
		policy:            policy,
		maxFailedAttempts: DefaultMaxFailedAttempts,
		lockoutDuration:   DefaultLockoutDuration,
		now:               time.Now,
	}
}

// Policy returns the password policy, which may be nil.
func (s *PasswordService) Policy() *PasswordPolicy {
	return s.policy
}

// Hash validates password against the policy and hashes it.
func (s *PasswordService) Hash(password string) (string, error) {
	if s.policy != nil {
		if err := s.policy.ValidatePassword(password); err != nil {
			return "", err
		}
	}
	return HashPassword(password)
}

// Authenticate verifies identifier (username or email) and password and
// returns the user on success. Active state is not checked here.
// Locks the account for lockoutDuration after maxFailedAttempts failures.
func (s *PasswordService) Authenticate(ctx context.Context, identifier, password string) (*domain.User, error) {
	if identifier == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.IsLocked() {
		return nil, domain.ErrAccountLocked
	}

	cred, err := s.users.GetPassword(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(password, cred.PasswordHash) {
		lockUntil := s.now().Add(s.lockoutDuration)
		if err := s.users.RecordLoginFailure(ctx, user.ID, s.maxFailedAttempts, lockUntil); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidCredentials
	}

	return user, nil
}

// RecordLogin resets the failure counter and stamps the login time.
func (s *PasswordService) RecordLogin(ctx context.Context, user *domain.User) error {
	return s.users.RecordLoginSuccess(ctx, user.ID, s.now())
}
