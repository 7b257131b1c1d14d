package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// ProfilesRepository handles profile and OTP challenge persistence.
type ProfilesRepository struct {
	db *sql.DB
}

// NewProfilesRepository creates a new profiles repository.
func NewProfilesRepository(db *sql.DB) *ProfilesRepository {
	return &ProfilesRepository{db: db}
}

// CreateTx inserts a profile within a transaction.
func (r *ProfilesRepository) CreateTx(ctx context.Context, q Querier, p *domain.Profile) error {
	query := `
		INSERT INTO profiles (user_id, display_name, email_verified, otp_code, otp_purpose,
		                      otp_expires_at, otp_used, last_otp_sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := q.ExecContext(ctx, query,
		p.UserID, p.DisplayName, p.EmailVerified, p.OTPCode, nullPurpose(p.OTPPurpose),
		p.OTPExpiresAt, p.OTPUsed, p.LastOTPSentAt, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// GetByUserID retrieves the profile of a user.
func (r *ProfilesRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	return r.getTx(ctx, r.db, userID)
}

func (r *ProfilesRepository) getTx(ctx context.Context, q Querier, userID uuid.UUID) (*domain.Profile, error) {
	query := `
		SELECT user_id, display_name, email_verified, otp_code, COALESCE(otp_purpose, ''),
		       otp_expires_at, otp_used, last_otp_sent_at, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`
	p := &domain.Profile{}
	var purpose string
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.DisplayName, &p.EmailVerified, &p.OTPCode, &purpose,
		&p.OTPExpiresAt, &p.OTPUsed, &p.LastOTPSentAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	p.OTPPurpose = domain.OTPPurpose(purpose)
	return p, nil
}

// GetOrCreate returns the profile of a user, creating an empty unverified one
// when none exists. The user must exist.
func (r *ProfilesRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	query := `
		INSERT INTO profiles (user_id, display_name, created_at, updated_at)
		SELECT id, COALESCE(NULLIF(TRIM(first_name || ' ' || last_name), ''), username), NOW(), NOW()
		FROM users WHERE id = $1
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return nil, err
	}
	p, err := r.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return nil, domain.ErrUserNotFound
	}
	return p, err
}

// SaveOTP overwrites the current challenge unconditionally.
func (r *ProfilesRepository) SaveOTP(ctx context.Context, userID uuid.UUID, ch domain.OTPChallenge) error {
	query := `
		UPDATE profiles
		SET otp_code = $2, otp_purpose = $3, otp_expires_at = $4, otp_used = false,
		    last_otp_sent_at = $5, updated_at = NOW()
		WHERE user_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, userID, ch.Code, string(ch.Purpose), ch.ExpiresAt, ch.SentAt)
	if err != nil {
		return err
	}
	return expectRow(result, domain.ErrProfileNotFound)
}

// SaveOTPIfIdle overwrites the current challenge only when no code was sent
// within wait of ch.SentAt. Concurrent callers race on the same row so at
// most one of them wins.
func (r *ProfilesRepository) SaveOTPIfIdle(ctx context.Context, userID uuid.UUID, ch domain.OTPChallenge, wait time.Duration) error {
	query := `
		UPDATE profiles
		SET otp_code = $2, otp_purpose = $3, otp_expires_at = $4, otp_used = false,
		    last_otp_sent_at = $5, updated_at = NOW()
		WHERE user_id = $1 AND (last_otp_sent_at IS NULL OR last_otp_sent_at <= $6)
	`
	cutoff := ch.SentAt.Add(-wait)
	result, err := r.db.ExecContext(ctx, query, userID, ch.Code, string(ch.Purpose), ch.ExpiresAt, ch.SentAt, cutoff)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	p, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	return &domain.ThrottleError{Wait: wait, Remaining: p.ResendRemaining(ch.SentAt, wait)}
}

// ConsumeTx marks the matching live challenge used and clears the code.
// It affects no row when the code was already consumed, replaced or expired.
func (r *ProfilesRepository) ConsumeTx(ctx context.Context, q Querier, userID uuid.UUID, code string, purpose domain.OTPPurpose, at time.Time, verify bool) error {
	query := `
		UPDATE profiles
		SET otp_used = true, otp_code = NULL,
		    email_verified = email_verified OR $5,
		    updated_at = NOW()
		WHERE user_id = $1 AND otp_code = $2 AND otp_purpose = $3
		  AND otp_used = false AND otp_expires_at >= $4
	`
	result, err := q.ExecContext(ctx, query, userID, code, string(purpose), at, verify)
	if err != nil {
		return err
	}
	return expectRow(result, domain.ErrOTPInvalid)
}

func nullPurpose(p domain.OTPPurpose) sql.NullString {
	return sql.NullString{String: string(p), Valid: p != ""}
}
