package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/tendant/simple-idm-otp/pkg/domain"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		username string
		valid    bool
	}{
		{"alice", true},
		{"Alice_99", true},
		{"bob-smith", true},
		{"007", true},
		{"abc", true},
		{strings.Repeat("a", 30), true},
		{"ab", false},
		{strings.Repeat("a", 31), false},
		{"_alice", false},
		{"-alice", false},
		{"alice smith", false},
		{"alice@example.com", false},
		{"alice.smith", false},
		{"josé", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.valid && err != nil {
				t.Errorf("ValidateUsername(%q) = %v, want nil", tt.username, err)
			}
			if !tt.valid && !errors.Is(err, domain.ErrInvalidUsername) {
				t.Errorf("ValidateUsername(%q) = %v, want ErrInvalidUsername", tt.username, err)
			}
		})
	}
}

func TestIsEmail(t *testing.T) {
	tests := map[string]bool{
		"alice":             false,
		"alice@example.com": true,
		"@":                 true,
		"":                  false,
	}
	for identifier, want := range tests {
		if got := IsEmail(identifier); got != want {
			t.Errorf("IsEmail(%q) = %v, want %v", identifier, got, want)
		}
	}
}
