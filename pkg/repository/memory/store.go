// Package memory provides an in-process account store for tests and
// single-node development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// Store keeps users, passwords and profiles in maps guarded by one mutex.
type Store struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*domain.User
	passwords map[uuid.UUID]*domain.UserPassword
	profiles  map[uuid.UUID]*domain.Profile
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:     make(map[uuid.UUID]*domain.User),
		passwords: make(map[uuid.UUID]*domain.UserPassword),
		profiles:  make(map[uuid.UUID]*domain.Profile),
	}
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func copyProfile(p *domain.Profile) *domain.Profile {
	c := *p
	if p.OTPCode != nil {
		code := *p.OTPCode
		c.OTPCode = &code
	}
	return &c
}

func (s *Store) CreateAccount(ctx context.Context, user *domain.User, pwd *domain.UserPassword, profile *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username {
			return domain.ErrUsernameAlreadyExists
		}
		if u.Email == user.Email {
			return domain.ErrUserAlreadyExists
		}
	}

	s.users[user.ID] = copyUser(user)
	p := *pwd
	s.passwords[user.ID] = &p
	s.profiles[user.ID] = copyProfile(profile)
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// GetUserByLogin prefers a username match over an email match.
func (s *Store) GetUserByLogin(ctx context.Context, identifier string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var byEmail *domain.User
	for _, u := range s.users {
		if u.Username == identifier {
			return copyUser(u), nil
		}
		if u.Email == identifier {
			byEmail = u
		}
	}
	if byEmail == nil {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(byEmail), nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetPassword(ctx context.Context, userID uuid.UUID) (*domain.UserPassword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.passwords[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *p
	return &c, nil
}

func (s *Store) ActivateUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Active = true
	u.UpdatedAt = time.Now()
	return nil
}

func (s *Store) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		t := lockUntil
		u.LockedUntil = &t
	}
	return nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	t := at
	u.LastLoginAt = &t
	return nil
}

func (s *Store) GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	p, ok := s.profiles[userID]
	if !ok {
		now := time.Now()
		p = &domain.Profile{UserID: userID, DisplayName: u.DisplayName(), CreatedAt: now, UpdatedAt: now}
		s.profiles[userID] = p
	}
	return copyProfile(p), nil
}

func (s *Store) SaveOTP(ctx context.Context, userID uuid.UUID, ch domain.OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.ApplyOTP(ch)
	return nil
}

func (s *Store) SaveOTPIfIdle(ctx context.Context, userID uuid.UUID, ch domain.OTPChallenge, wait time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	if remaining := p.ResendRemaining(ch.SentAt, wait); remaining > 0 {
		return &domain.ThrottleError{Wait: wait, Remaining: remaining}
	}
	p.ApplyOTP(ch)
	return nil
}

// consume requires the lock held.
func (s *Store) consume(userID uuid.UUID, code string, purpose domain.OTPPurpose, at time.Time) (*domain.Profile, error) {
	p, ok := s.profiles[userID]
	if !ok || p.OTPUsed || p.OTPPurpose != purpose || !p.MatchesOTP(code) || p.IsOTPExpired(at) {
		return nil, domain.ErrOTPInvalid
	}
	p.ConsumeOTP()
	return p, nil
}

func (s *Store) ConsumeRegistrationOTP(ctx context.Context, userID uuid.UUID, code string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	p, err := s.consume(userID, code, domain.OTPPurposeRegistration, at)
	if err != nil {
		return err
	}
	p.EmailVerified = true
	u.Active = true
	return nil
}

func (s *Store) ConsumeResetOTP(ctx context.Context, userID uuid.UUID, code string, at time.Time, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pwd, ok := s.passwords[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if _, err := s.consume(userID, code, domain.OTPPurposePasswordReset, at); err != nil {
		return err
	}
	pwd.PasswordHash = passwordHash
	pwd.PasswordUpdatedAt = at
	return nil
}

// DeleteProfile removes a profile, as an operator or migration might.
func (s *Store) DeleteProfile(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
}
