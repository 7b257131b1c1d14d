package auth

import (
	"regexp"
	"strings"

	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// 3-30 chars of [A-Za-z0-9_-], starting with a letter or digit.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{2,29}$`)

// ValidateUsername checks the username format.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return domain.ErrInvalidUsername
	}
	return nil
}

// IsEmail reports whether a login identifier looks like an email address.
func IsEmail(identifier string) bool {
	return strings.Contains(identifier, "@")
}
