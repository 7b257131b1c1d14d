package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// Store composes the Postgres repositories behind the account and profile
// operations used by the auth services. Multi-table writes run in one
// transaction.
type Store struct {
	db       *sql.DB
	users    *UsersRepository
	profiles *ProfilesRepository
}

// NewStore creates a Postgres-backed store.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		users:    NewUsersRepository(db),
		profiles: NewProfilesRepository(db),
	}
}

// CreateAccount inserts the user, its password and its profile atomically.
func (s *Store) CreateAccount(ctx context.Context, user *domain.User, pwd *domain.UserPassword, profile *domain.Profile) error {
	return Tx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.users.CreateTx(ctx, tx, user); err != nil {
			return err
		}
		if err := s.users.CreatePasswordTx(ctx, tx, pwd); err != nil {
			return err
		}
		return s.profiles.CreateTx(ctx, tx, profile)
	})
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByEmail(ctx, email)
}

func (s *Store) GetUserByLogin(ctx context.Context, identifier string) (*domain.User, error) {
	return s.users.GetByUsernameOrEmail(ctx, identifier)
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.users.ExistsByUsername(ctx, username)
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.users.ExistsByEmail(ctx, email)
}

func (s *Store) GetPassword(ctx context.Context, userID uuid.UUID) (*domain.UserPassword, error) {
	return s.users.GetPassword(ctx, userID)
}

// ActivateUser sets the active flag without touching email verification.
func (s *Store) ActivateUser(ctx context.Context, id uuid.UUID) error {
	return s.users.ActivateTx(ctx, s.db, id)
}

func (s *Store) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) error {
	return s.users.IncrementFailedLoginAttempts(ctx, id, maxAttempts, lockUntil)
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.users.RecordLogin(ctx, id, at)
}

func (s *Store) GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	return s.profiles.GetOrCreate(ctx, userID)
}

func (s *Store) SaveOTP(ctx context.Context, userID uuid.UUID, ch domain.OTPChallenge) error {
	return s.profiles.SaveOTP(ctx, userID, ch)
}

func (s *Store) SaveOTPIfIdle(ctx context.Context, userID uuid.UUID, ch domain.OTPChallenge, wait time.Duration) error {
	return s.profiles.SaveOTPIfIdle(ctx, userID, ch, wait)
}

// ConsumeRegistrationOTP consumes a registration code, verifies the email
// and activates the account in one transaction.
func (s *Store) ConsumeRegistrationOTP(ctx context.Context, userID uuid.UUID, code string, at time.Time) error {
	return Tx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.profiles.ConsumeTx(ctx, tx, userID, code, domain.OTPPurposeRegistration, at, true); err != nil {
			return err
		}
		return s.users.ActivateTx(ctx, tx, userID)
	})
}

// ConsumeResetOTP consumes a password reset code and stores the new hash in
// one transaction.
func (s *Store) ConsumeResetOTP(ctx context.Context, userID uuid.UUID, code string, at time.Time, passwordHash string) error {
	return Tx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.profiles.ConsumeTx(ctx, tx, userID, code, domain.OTPPurposePasswordReset, at, false); err != nil {
			return err
		}
		return s.users.UpdatePasswordTx(ctx, tx, userID, passwordHash, at)
	})
}
