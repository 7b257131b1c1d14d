package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

const userColumns = `id, username, email, first_name, last_name, active,
	failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

// UsersRepository handles user and password persistence.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.Active,
		&user.FailedLoginAttempts, &user.LockedUntil, &user.LastLoginAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateTx creates a new user within a transaction.
func (r *UsersRepository) CreateTx(ctx context.Context, q Querier, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, first_name, last_name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.Active,
		user.CreatedAt, user.UpdatedAt,
	)
	if name, ok := uniqueConstraint(err); ok {
		if name == "users_username_key" {
			return domain.ErrUsernameAlreadyExists
		}
		return domain.ErrUserAlreadyExists
	}
	return err
}

// CreatePasswordTx stores the password hash for a user within a transaction.
func (r *UsersRepository) CreatePasswordTx(ctx context.Context, q Querier, pwd *domain.UserPassword) error {
	query := `
		INSERT INTO user_password (user_id, password_hash, password_updated_at)
		VALUES ($1, $2, $3)
	`
	_, err := q.ExecContext(ctx, query, pwd.UserID, pwd.PasswordHash, pwd.PasswordUpdatedAt)
	return err
}

// UpdatePasswordTx replaces the password hash for a user within a transaction.
func (r *UsersRepository) UpdatePasswordTx(ctx context.Context, q Querier, userID uuid.UUID, hash string, at time.Time) error {
	query := `
		UPDATE user_password
		SET password_hash = $2, password_updated_at = $3
		WHERE user_id = $1
	`
	result, err := q.ExecContext(ctx, query, userID, hash, at)
	if err != nil {
		return err
	}
	return expectRow(result, domain.ErrUserNotFound)
}

// GetPassword retrieves the password credentials of a user.
func (r *UsersRepository) GetPassword(ctx context.Context, userID uuid.UUID) (*domain.UserPassword, error) {
	query := `
		SELECT user_id, password_hash, password_updated_at
		FROM user_password
		WHERE user_id = $1
	`
	pwd := &domain.UserPassword{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&pwd.UserID, &pwd.PasswordHash, &pwd.PasswordUpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return pwd, nil
}

// GetByID retrieves a user by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail retrieves a user by email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetByUsernameOrEmail retrieves a user by username, falling back to email.
// A username match wins when one user's username equals another's email.
func (r *UsersRepository) GetByUsernameOrEmail(ctx context.Context, identifier string) (*domain.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE username = $1 OR email = $1
		ORDER BY (username = $1) DESC
		LIMIT 1`
	return scanUser(r.db.QueryRowContext(ctx, query, identifier))
}

// ExistsByEmail checks if a user exists by email.
func (r *UsersRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	return exists, err
}

// ExistsByUsername checks if a user exists by username.
func (r *UsersRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, username).Scan(&exists)
	return exists, err
}

// ActivateTx flips the active flag within a transaction.
func (r *UsersRepository) ActivateTx(ctx context.Context, q Querier, id uuid.UUID) error {
	query := `UPDATE users SET active = true, updated_at = NOW() WHERE id = $1`
	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return expectRow(result, domain.ErrUserNotFound)
}

// IncrementFailedLoginAttempts increments the failed login counter and locks
// the account until lockUntil once maxAttempts is reached.
func (r *UsersRepository) IncrementFailedLoginAttempts(ctx context.Context, userID uuid.UUID, maxAttempts int, lockUntil time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN $3
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, maxAttempts, lockUntil)
	return err
}

// RecordLogin resets the failure counter and stamps the login time.
func (r *UsersRepository) RecordLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    last_login_at = $2,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, at)
	return err
}

func expectRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
