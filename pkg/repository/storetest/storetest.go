// Package storetest holds behaviour checks shared by the account store
// implementations, so the in-memory store and Postgres are held to the same
// guarantees.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// Store is the part of the account store exercised here.
type Store interface {
	CreateAccount(ctx context.Context, user *domain.User, pwd *domain.UserPassword, profile *domain.Profile) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetPassword(ctx context.Context, userID uuid.UUID) (*domain.UserPassword, error)
	GetOrCreateProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	SaveOTP(ctx context.Context, userID uuid.UUID, ch domain.OTPChallenge) error
	SaveOTPIfIdle(ctx context.Context, userID uuid.UUID, ch domain.OTPChallenge, wait time.Duration) error
	ConsumeRegistrationOTP(ctx context.Context, userID uuid.UUID, code string, at time.Time) error
	ConsumeResetOTP(ctx context.Context, userID uuid.UUID, code string, at time.Time, passwordHash string) error
}

// Now returns the current time at the microsecond precision Postgres keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// SeedAccount creates an inactive account with a unique username and an
// empty profile.
func SeedAccount(t *testing.T, s Store) *domain.User {
	t.Helper()
	now := Now()
	id := uuid.New()
	tag := id.String()[:8]
	u := &domain.User{
		ID:        id,
		Username:  "user_" + tag,
		Email:     "user_" + tag + "@example.com",
		FirstName: "Test",
		LastName:  tag,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.CreateAccount(context.Background(), u,
		&domain.UserPassword{UserID: id, PasswordHash: "hash", PasswordUpdatedAt: now},
		&domain.Profile{UserID: id, DisplayName: u.DisplayName(), CreatedAt: now, UpdatedAt: now},
	)
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	return u
}

// race runs fn(i) for i in [0, n) from n goroutines released together.
func race(n int, fn func(i int)) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
}

// tally counts winners and expected losers of a race and records the
// index of the last winner.
type tally struct {
	mu     sync.Mutex
	won    int
	lost   int
	winner int
}

func (c *tally) record(t *testing.T, i int, err, loss error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.won++
		c.winner = i
	case errors.Is(err, loss):
		c.lost++
	default:
		t.Errorf("call %d: unexpected error %v", i, err)
	}
}

func (c *tally) expectOneWinner(t *testing.T, n int, what string) {
	t.Helper()
	if c.won != 1 || c.lost != n-1 {
		t.Fatalf("%s: %d succeeded and %d lost out of %d, want exactly one success", what, c.won, c.lost, n)
	}
}

func code(i int) string {
	return fmt.Sprintf("%06d", 100000+i)
}

// ConcurrentResend issues n throttled resends for one idle profile at the
// same instant. Exactly one may store its code; the rest are throttled.
func ConcurrentResend(t *testing.T, s Store, n int) {
	t.Helper()
	ctx := context.Background()
	u := SeedAccount(t, s)
	sent := Now()
	wait := 5 * time.Minute

	var c tally
	race(n, func(i int) {
		ch := domain.OTPChallenge{
			Code:      code(i),
			Purpose:   domain.OTPPurposeRegistration,
			SentAt:    sent,
			ExpiresAt: sent.Add(15 * time.Minute),
		}
		c.record(t, i, s.SaveOTPIfIdle(ctx, u.ID, ch, wait), domain.ErrOTPThrottled)
	})
	c.expectOneWinner(t, n, "SaveOTPIfIdle")

	p, err := s.GetOrCreateProfile(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetOrCreateProfile() error = %v", err)
	}
	if !p.MatchesOTP(code(c.winner)) {
		t.Errorf("stored code is not the winner's %s", code(c.winner))
	}
	if p.LastOTPSentAt == nil || !p.LastOTPSentAt.Equal(sent) {
		t.Errorf("LastOTPSentAt = %v, want %v", p.LastOTPSentAt, sent)
	}
}

// ConcurrentRegistrationConsume submits the same registration code n
// times at once. Exactly one consumes it and activates the account.
func ConcurrentRegistrationConsume(t *testing.T, s Store, n int) {
	t.Helper()
	ctx := context.Background()
	u := SeedAccount(t, s)
	now := Now()
	ch := domain.OTPChallenge{Code: "424242", Purpose: domain.OTPPurposeRegistration, SentAt: now, ExpiresAt: now.Add(15 * time.Minute)}
	if err := s.SaveOTP(ctx, u.ID, ch); err != nil {
		t.Fatalf("SaveOTP() error = %v", err)
	}

	var c tally
	race(n, func(i int) {
		c.record(t, i, s.ConsumeRegistrationOTP(ctx, u.ID, ch.Code, now), domain.ErrOTPInvalid)
	})
	c.expectOneWinner(t, n, "ConsumeRegistrationOTP")

	got, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	p, err := s.GetOrCreateProfile(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetOrCreateProfile() error = %v", err)
	}
	if !got.Active || !p.EmailVerified || !p.OTPUsed || p.OTPCode != nil {
		t.Errorf("after consume: active=%v verified=%v used=%v code=%v", got.Active, p.EmailVerified, p.OTPUsed, p.OTPCode)
	}
}

// ConcurrentResetConsume submits one reset code with n different new
// passwords at once. Exactly one password is stored.
func ConcurrentResetConsume(t *testing.T, s Store, n int) {
	t.Helper()
	ctx := context.Background()
	u := SeedAccount(t, s)
	now := Now()
	ch := domain.OTPChallenge{Code: "515151", Purpose: domain.OTPPurposePasswordReset, SentAt: now, ExpiresAt: now.Add(15 * time.Minute)}
	if err := s.SaveOTP(ctx, u.ID, ch); err != nil {
		t.Fatalf("SaveOTP() error = %v", err)
	}

	var c tally
	race(n, func(i int) {
		hash := fmt.Sprintf("hash-%d", i)
		c.record(t, i, s.ConsumeResetOTP(ctx, u.ID, ch.Code, now, hash), domain.ErrOTPInvalid)
	})
	c.expectOneWinner(t, n, "ConsumeResetOTP")

	pwd, err := s.GetPassword(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetPassword() error = %v", err)
	}
	if want := fmt.Sprintf("hash-%d", c.winner); pwd.PasswordHash != want {
		t.Errorf("password hash = %q, want the winner's %q", pwd.PasswordHash, want)
	}
	p, _ := s.GetOrCreateProfile(ctx, u.ID)
	if p.EmailVerified {
		t.Error("a reset must not verify the email")
	}
}

// ConcurrentGetOrCreate recreates a missing profile from n goroutines at
// once. Every caller gets the same profile and none fails. drop removes
// the seeded profile first.
func ConcurrentGetOrCreate(t *testing.T, s Store, n int, drop func(userID uuid.UUID)) {
	t.Helper()
	ctx := context.Background()
	u := SeedAccount(t, s)
	drop(u.ID)

	var mu sync.Mutex
	created := map[time.Time]int{}
	race(n, func(i int) {
		p, err := s.GetOrCreateProfile(ctx, u.ID)
		if err != nil {
			t.Errorf("call %d: GetOrCreateProfile() error = %v", i, err)
			return
		}
		if p.UserID != u.ID || p.DisplayName != u.DisplayName() || p.EmailVerified {
			t.Errorf("call %d: unexpected profile %+v", i, p)
		}
		mu.Lock()
		created[p.CreatedAt]++
		mu.Unlock()
	})
	if len(created) != 1 {
		t.Errorf("callers saw %d distinct profiles, want 1", len(created))
	}
}
