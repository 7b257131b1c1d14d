package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// AccountConfig holds account flow settings.
type AccountConfig struct {
	AppBaseURL            string
	StrictEmailValidation bool
	BlockDisposableEmail  bool
}

// AccountService orchestrates registration, activation, OTP verification,
// login and password reset.
type AccountService struct {
	logger    *slog.Logger
	store     Store
	passwords *PasswordService
	otps      *OTPService
	tokens    *ActivationTokenService
	mailer    Mailer
	config    AccountConfig
}

// NewAccountService creates a new account service.
func NewAccountService(
	logger *slog.Logger,
	store Store,
	passwords *PasswordService,
	otps *OTPService,
	tokens *ActivationTokenService,
	mailer Mailer,
	config AccountConfig,
) *AccountService {
	return &AccountService{
		logger:    logger,
		store:     store,
		passwords: passwords,
		otps:      otps,
		tokens:    tokens,
		mailer:    mailer,
		config:    config,
	}
}

// Register creates an inactive account, issues a registration OTP and sends
// the activation email. When only the email fails, the user is returned
// together with an error matching domain.ErrDispatchFailed.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.FirstName = SanitizeName(in.FirstName)
	in.LastName = SanitizeName(in.LastName)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)

	if err := validateForm(in); err != nil {
		return nil, err
	}
	if err := ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := ValidateStringLength("first_name", in.FirstName, 0, maxNameLength); err != nil {
		return nil, errors.Join(domain.ErrInvalidName, err)
	}
	if err := ValidateStringLength("last_name", in.LastName, 0, maxNameLength); err != nil {
		return nil, errors.Join(domain.ErrInvalidName, err)
	}
	if err := ValidateEmail(in.Email, s.config.StrictEmailValidation, s.config.BlockDisposableEmail); err != nil {
		return nil, err
	}

	exists, err := s.store.UsernameExists(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrUsernameAlreadyExists
	}
	exists, err = s.store.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrUserAlreadyExists
	}

	hash, err := s.passwords.Hash(in.Password1)
	if err != nil {
		return nil, err
	}

	now := s.otps.Now()
	user := &domain.User{
		ID:        uuid.New(),
		Username:  in.Username,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Active:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	pwd := &domain.UserPassword{
		UserID:            user.ID,
		PasswordHash:      hash,
		PasswordUpdatedAt: now,
	}
	profile := &domain.Profile{
		UserID:      user.ID,
		DisplayName: user.DisplayName(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateAccount(ctx, user, pwd, profile); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)

	ch, err := s.otps.Issue(ctx, user.ID, domain.OTPPurposeRegistration)
	if err != nil {
		return nil, fmt.Errorf("issue registration otp: %w", err)
	}
	return user, s.sendActivation(ctx, user, pwd, ch)
}

func (s *AccountService) sendActivation(ctx context.Context, user *domain.User, pwd *domain.UserPassword, ch domain.OTPChallenge) error {
	token, err := s.tokens.Make(user, pwd)
	if err != nil {
		return fmt.Errorf("sign activation token: %w", err)
	}
	link := fmt.Sprintf("%s/activate/%s/%s", strings.TrimRight(s.config.AppBaseURL, "/"), EncodeUID(user.ID), token)
	return s.dispatch(user, "activation", func() error {
		return s.mailer.SendActivationEmail(ctx, user.Email, user.Username, link, ch.Code)
	})
}

func (s *AccountService) dispatch(user *domain.User, kind string, send func() error) error {
	if err := send(); err != nil {
		s.logger.Error("failed to send email", "kind", kind, "user_id", user.ID, "error", err)
		return errors.Join(domain.ErrDispatchFailed, err)
	}
	s.logger.Info("email sent", "kind", kind, "user_id", user.ID)
	return nil
}

// ActivateByLink activates the account named by an activation link. It does
// not verify the email. Every failure is domain.ErrActivationInvalid.
func (s *AccountService) ActivateByLink(ctx context.Context, uidb64, token string) (*domain.User, error) {
	id, err := DecodeUID(uidb64)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrActivationInvalid
		}
		return nil, err
	}
	pwd, err := s.store.GetPassword(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrActivationInvalid
		}
		return nil, err
	}
	if err := s.tokens.Check(user, pwd, token); err != nil {
		return nil, err
	}
	if err := s.store.ActivateUser(ctx, id); err != nil {
		return nil, err
	}
	user.Active = true
	s.logger.Info("account activated", "user_id", id, "evidence", domain.ActivationByLink)
	return user, nil
}

// VerifyRegistrationOTP checks code against the pending user's registration
// challenge and, on success, activates the account and verifies the email
// in one step.
func (s *AccountService) VerifyRegistrationOTP(ctx context.Context, userID uuid.UUID, code string) error {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return err
	}
	if code == "" {
		return domain.ErrOTPInvalid
	}

	profile, err := s.store.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.otps.Check(profile, code, domain.OTPPurposeRegistration); err != nil {
		return err
	}
	if err := s.store.ConsumeRegistrationOTP(ctx, userID, code, s.otps.Now()); err != nil {
		return err
	}
	s.logger.Info("account activated", "user_id", userID, "evidence", domain.ActivationByOTP)
	return nil
}

// ResendRegistrationOTP issues a new registration code subject to the resend
// wait and emails it with a fresh activation link.
func (s *AccountService) ResendRegistrationOTP(ctx context.Context, userID uuid.UUID) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Active {
		return domain.ErrAccountAlreadyActive
	}

	ch, err := s.otps.Resend(ctx, userID, domain.OTPPurposeRegistration)
	if err != nil {
		return err
	}
	pwd, err := s.store.GetPassword(ctx, userID)
	if err != nil {
		return err
	}
	return s.sendActivation(ctx, user, pwd, ch)
}

// Login authenticates the user and requires an active account.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*domain.User, error) {
	user, err := s.passwords.Authenticate(ctx, strings.TrimSpace(identifier), password)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, domain.ErrAccountInactive
	}
	if err := s.passwords.RecordLogin(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// RequestPasswordReset issues a password reset code for the account with
// the given email, subject to the resend wait.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (*domain.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, domain.ErrMissingFields
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	ch, err := s.otps.Resend(ctx, user.ID, domain.OTPPurposePasswordReset)
	if err != nil {
		return nil, err
	}
	return user, s.dispatch(user, "password_reset", func() error {
		return s.mailer.SendPasswordResetEmail(ctx, user.Email, user.Username, ch.Code)
	})
}

// ResetPassword checks a password reset code and replaces the password.
// The email verification state is left unchanged.
func (s *AccountService) ResetPassword(ctx context.Context, userID uuid.UUID, in ResetPasswordInput) error {
	in.OTP = strings.TrimSpace(in.OTP)
	if err := validateForm(in); err != nil {
		return err
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return err
	}

	profile, err := s.store.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.otps.Check(profile, in.OTP, domain.OTPPurposePasswordReset); err != nil {
		return err
	}

	hash, err := s.passwords.Hash(in.Password1)
	if err != nil {
		return err
	}
	if err := s.store.ConsumeResetOTP(ctx, userID, in.OTP, s.otps.Now(), hash); err != nil {
		return err
	}
	s.logger.Info("password reset", "user_id", userID)
	return nil
}

// User returns a user by id.
func (s *AccountService) User(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// Profile returns the profile of a user, creating it if missing.
func (s *AccountService) Profile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	return s.store.GetOrCreateProfile(ctx, id)
}

// ResendWait returns how long a user must wait between codes.
func (s *AccountService) ResendWait() time.Duration {
	return s.otps.Config().ResendWait
}
