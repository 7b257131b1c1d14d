package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

// DefaultActivationTTL is how long an activation link stays valid.
const DefaultActivationTTL = 3 * 24 * time.Hour

// ActivationClaims are the claims of an activation link token. State binds
// the token to the account state it was issued for, so activating the
// account, logging in or changing the password invalidates it.
type ActivationClaims struct {
	jwt.RegisteredClaims
	State string `json:"state"`
}

// ActivationTokenService signs and checks activation link tokens.
type ActivationTokenService struct {
	secret []byte
	ttl    time.Duration
	now    Clock
}

// NewActivationTokenService creates a new activation token service.
func NewActivationTokenService(secret []byte, ttl time.Duration) *ActivationTokenService {
	if ttl == 0 {
		ttl = DefaultActivationTTL
	}
	return &ActivationTokenService{secret: secret, ttl: ttl, now: time.Now}
}

// EncodeUID renders a user id for the activation URL.
func EncodeUID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id.String()))
}

// DecodeUID parses the uid segment of an activation URL.
func DecodeUID(uidb64 string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(uidb64)
	if err != nil {
		return uuid.Nil, domain.ErrActivationInvalid
	}
	id, err := uuid.Parse(string(raw))
	if err != nil {
		return uuid.Nil, domain.ErrActivationInvalid
	}
	return id, nil
}

func (s *ActivationTokenService) state(user *domain.User, pwd *domain.UserPassword) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(user.ID.String()))
	mac.Write([]byte{0})
	mac.Write([]byte(pwd.PasswordHash))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatBool(user.Active)))
	mac.Write([]byte{0})
	if user.LastLoginAt != nil {
		mac.Write([]byte(strconv.FormatInt(user.LastLoginAt.UnixNano(), 10)))
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Make signs a token for the user's current state.
func (s *ActivationTokenService) Make(user *domain.User, pwd *domain.UserPassword) (string, error) {
	now := s.now()
	claims := ActivationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		State: s.state(user, pwd),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Check verifies the signature, expiry, subject and state of token. Every
// failure is reported as domain.ErrActivationInvalid.
func (s *ActivationTokenService) Check(user *domain.User, pwd *domain.UserPassword, token string) error {
	claims := &ActivationClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(user.ID.String()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return errors.Join(domain.ErrActivationInvalid, err)
	}
	if !hmac.Equal([]byte(claims.State), []byte(s.state(user, pwd))) {
		return domain.ErrActivationInvalid
	}
	return nil
}
