// Package auth issues and validates session tokens and hashes local
// passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the standard registered claims plus the admin flag as it
// was when the token was issued.
type Claims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin"`
}

// Identity is the authenticated caller extracted from a valid token.
type Identity struct {
	Username  string
	IsAdmin   bool
	ExpiresAt time.Time
}

// TokenService signs HS256 session tokens with a single server secret.
// Tokens cannot be revoked before they expire.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(secret []byte, ttl time.Duration, opts ...TokenOption) *TokenService {
	s := &TokenService{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue returns a signed token for username.
func (s *TokenService) Issue(username string, isAdmin bool) (string, error) {
	now := s.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    common.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		Admin: isAdmin,
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Validate checks the signature, issuer and expiry of tokenString. It
// returns common.ErrTokenExpired once the token has expired and an error
// matching common.ErrTokenMalformed for anything else wrong with it.
func (s *TokenService) Validate(tokenString string) (*Identity, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(common.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", common.ErrTokenMalformed)
	}

	return &Identity{
		Username:  claims.Subject,
		IsAdmin:   claims.Admin,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
