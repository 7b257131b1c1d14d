package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/pkg/domain"
	"github.com/tendant/simple-idm-otp/pkg/repository/storetest"
)

func seed(t *testing.T, s *Store, username, email string) *domain.User {
	t.Helper()
	now := time.Now()
	u := &domain.User{ID: uuid.New(), Username: username, Email: email, CreatedAt: now, UpdatedAt: now}
	err := s.CreateAccount(context.Background(), u,
		&domain.UserPassword{UserID: u.ID, PasswordHash: "hash", PasswordUpdatedAt: now},
		&domain.Profile{UserID: u.ID, CreatedAt: now, UpdatedAt: now},
	)
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	return u
}

func TestStore_CreateAccountUniqueness(t *testing.T) {
	s := NewStore()
	seed(t, s, "alice", "alice@example.com")

	tests := []struct {
		name     string
		username string
		email    string
		wantErr  error
	}{
		{"duplicate username", "alice", "other@example.com", domain.ErrUsernameAlreadyExists},
		{"duplicate email", "bob", "alice@example.com", domain.ErrUserAlreadyExists},
		{"email differs only by case", "carol", "Alice@example.com", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &domain.User{ID: uuid.New(), Username: tt.username, Email: tt.email}
			err := s.CreateAccount(context.Background(), u, &domain.UserPassword{UserID: u.ID}, &domain.Profile{UserID: u.ID})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateAccount() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_GetUserByLoginPrefersUsername(t *testing.T) {
	s := NewStore()
	seed(t, s, "alice", "bob@example.com")
	bob := seed(t, s, "bob@example.com", "real-bob@example.com")

	got, err := s.GetUserByLogin(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByLogin() error = %v", err)
	}
	if got.ID != bob.ID {
		t.Error("expected username match to win over email match")
	}
}

func TestStore_SaveOTPIfIdle(t *testing.T) {
	s := NewStore()
	u := seed(t, s, "alice", "alice@example.com")
	ctx := context.Background()
	sent := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	wait := 5 * time.Minute

	first := domain.OTPChallenge{Code: "111111", Purpose: domain.OTPPurposeRegistration, SentAt: sent, ExpiresAt: sent.Add(15 * time.Minute)}
	if err := s.SaveOTPIfIdle(ctx, u.ID, first, wait); err != nil {
		t.Fatalf("first SaveOTPIfIdle() error = %v", err)
	}

	early := first
	early.Code = "222222"
	early.SentAt = sent.Add(2 * time.Minute)
	err := s.SaveOTPIfIdle(ctx, u.ID, early, wait)
	var te *domain.ThrottleError
	if !errors.As(err, &te) || te.Remaining != 3*time.Minute {
		t.Fatalf("early SaveOTPIfIdle() error = %v, want throttle with 3m remaining", err)
	}

	p, _ := s.GetOrCreateProfile(ctx, u.ID)
	if !p.MatchesOTP("111111") {
		t.Error("throttled call must not replace the code")
	}
}

func TestStore_ConsumeRegistrationOTP(t *testing.T) {
	s := NewStore()
	u := seed(t, s, "alice", "alice@example.com")
	ctx := context.Background()
	now := time.Now()

	ch := domain.OTPChallenge{Code: "123456", Purpose: domain.OTPPurposeRegistration, SentAt: now, ExpiresAt: now.Add(time.Minute)}
	if err := s.SaveOTP(ctx, u.ID, ch); err != nil {
		t.Fatalf("SaveOTP() error = %v", err)
	}

	if err := s.ConsumeRegistrationOTP(ctx, u.ID, "123456", now); err != nil {
		t.Fatalf("ConsumeRegistrationOTP() error = %v", err)
	}
	if err := s.ConsumeRegistrationOTP(ctx, u.ID, "123456", now); !errors.Is(err, domain.ErrOTPInvalid) {
		t.Errorf("replay error = %v, want ErrOTPInvalid", err)
	}

	got, _ := s.GetUserByID(ctx, u.ID)
	p, _ := s.GetOrCreateProfile(ctx, u.ID)
	if !got.Active || !p.EmailVerified || !p.OTPUsed || p.OTPCode != nil {
		t.Errorf("unexpected state after consume: active=%v verified=%v used=%v code=%v",
			got.Active, p.EmailVerified, p.OTPUsed, p.OTPCode)
	}
}

func TestStore_ConsumeResetOTPWrongPurpose(t *testing.T) {
	s := NewStore()
	u := seed(t, s, "alice", "alice@example.com")
	ctx := context.Background()
	now := time.Now()

	ch := domain.OTPChallenge{Code: "123456", Purpose: domain.OTPPurposeRegistration, SentAt: now, ExpiresAt: now.Add(time.Minute)}
	_ = s.SaveOTP(ctx, u.ID, ch)

	if err := s.ConsumeResetOTP(ctx, u.ID, "123456", now, "new-hash"); !errors.Is(err, domain.ErrOTPInvalid) {
		t.Errorf("ConsumeResetOTP() error = %v, want ErrOTPInvalid", err)
	}
	pwd, _ := s.GetPassword(ctx, u.ID)
	if pwd.PasswordHash != "hash" {
		t.Error("password must not change on a failed consume")
	}
}

func TestStore_GetOrCreateProfile(t *testing.T) {
	s := NewStore()
	u := seed(t, s, "alice", "alice@example.com")
	s.DeleteProfile(u.ID)

	p, err := s.GetOrCreateProfile(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetOrCreateProfile() error = %v", err)
	}
	if p.EmailVerified || p.OTPCode != nil {
		t.Error("recreated profile should be empty and unverified")
	}

	if _, err := s.GetOrCreateProfile(context.Background(), uuid.New()); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestStore_ConcurrentResend(t *testing.T) {
	storetest.ConcurrentResend(t, NewStore(), 32)
}

func TestStore_ConcurrentConsume(t *testing.T) {
	s := NewStore()
	storetest.ConcurrentRegistrationConsume(t, s, 16)
	storetest.ConcurrentResetConsume(t, s, 16)
}

func TestStore_ConcurrentGetOrCreateProfile(t *testing.T) {
	s := NewStore()
	storetest.ConcurrentGetOrCreate(t, s, 16, s.DeleteProfile)
}
