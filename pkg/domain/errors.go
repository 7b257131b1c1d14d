package domain

import (
	"errors"
	"fmt"
	"time"
)

// Authentication errors
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyExists     = errors.New("email already registered")
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountLocked         = errors.New("account locked due to too many failed login attempts")
	ErrAccountInactive       = errors.New("account is not active")
	ErrAccountAlreadyActive  = errors.New("account already active")
	ErrInvalidToken          = errors.New("invalid token")
	ErrActivationInvalid     = errors.New("invalid activation link")
)

// Profile and one-time password errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrOTPInvalid      = errors.New("invalid otp code")
	ErrOTPExpired      = errors.New("otp code expired")
	ErrOTPThrottled    = errors.New("otp requested too recently")
	ErrDispatchFailed  = errors.New("failed to dispatch email")
)

// Validation errors
var (
	ErrMissingFields    = errors.New("all fields are required")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidUsername  = errors.New("invalid username format")
	ErrInvalidName      = errors.New("name is too long")
	ErrWeakPassword     = errors.New("password does not meet requirements")
)

// ThrottleError reports how long a caller must wait before a new OTP can be
// issued. It matches ErrOTPThrottled with errors.Is.
type ThrottleError struct {
	Wait      time.Duration
	Remaining time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrOTPThrottled, e.Remaining.Round(time.Second))
}

func (e *ThrottleError) Is(target error) bool {
	return target == ErrOTPThrottled
}
