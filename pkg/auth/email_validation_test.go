package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/tendant/simple-idm-otp/pkg/domain"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name            string
		email           string
		strict          bool
		blockDisposable bool
		wantErr         bool
	}{
		{name: "plain address", email: "alice@example.com"},
		{name: "plus tag", email: "alice+otp@example.com"},
		{name: "subdomain", email: "alice@mail.example.co.uk"},
		{name: "mixed case domain", email: "Alice@Example.COM"},
		{name: "surrounding space", email: "  alice@example.com  "},
		{name: "empty", email: "", wantErr: true},
		{name: "no at sign", email: "alice.example.com", wantErr: true},
		{name: "no local part", email: "@example.com", wantErr: true},
		{name: "no domain", email: "alice@", wantErr: true},
		{name: "inner space", email: "alice smith@example.com", wantErr: true},
		{name: "display name", email: "Alice <alice@example.com>", wantErr: true},
		{name: "too long", email: strings.Repeat("a", 250) + "@example.com", wantErr: true},
		{name: "unicode local part lenient", email: "josé@example.com"},
		{name: "unicode local part strict", email: "josé@example.com", strict: true, wantErr: true},
		{name: "strict plain address", email: "alice@example.com", strict: true},
		{name: "disposable allowed", email: "alice@mailinator.com"},
		{name: "disposable blocked", email: "alice@mailinator.com", blockDisposable: true, wantErr: true},
		{name: "disposable blocked any case", email: "alice@MailInator.com", blockDisposable: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email, tt.strict, tt.blockDisposable)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidEmail) {
					t.Errorf("ValidateEmail(%q) = %v, want ErrInvalidEmail", tt.email, err)
				}
				return
			}
			if err != nil {
				t.Errorf("ValidateEmail(%q) = %v, want nil", tt.email, err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "alice@example.com"},
		{"Alice@Example.COM", "Alice@example.com"},
		{"  bob@EXAMPLE.org\n", "bob@example.org"},
		{"\"a@b\"@Example.com", "\"a@b\"@example.com"},
		{"no-at-sign", "no-at-sign"},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
