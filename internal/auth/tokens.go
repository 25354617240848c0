// Package auth issues and validates the bearer tokens that guard operator endpoints.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Tokens are HS256 JWTs carrying a subject and a role list. Only operator
// tooling needs one; location and weather reads are public.

// DefaultTokenExpiry applies when Config.Expiry is unset.
const DefaultTokenExpiry = time.Hour

// DefaultLeeway tolerates clock skew between issuer and API hosts.
const DefaultLeeway = 30 * time.Second

// RoleAdmin may trigger batch sync and read ops status.
const RoleAdmin = "admin"

var (
	ErrInvalidToken      = errors.New("invalid access token")
	ErrTokenExpired      = errors.New("access token has expired")
	ErrMissingSigningKey = errors.New("jwt signing key is not configured")
)

// Claims are the JWT claims of an access token.
type Claims struct {
	jwt.RegisteredClaims

	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the claims grant role.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// Config configures a TokenService.
type Config struct {
	SigningKey string
	Issuer     string
	Audience   string

	// Expiry defaults to DefaultTokenExpiry.
	Expiry time.Duration

	// Leeway defaults to DefaultLeeway. Negative disables it.
	Leeway time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// TokenService issues and validates access tokens.
type TokenService struct {
	key    []byte
	cfg    Config
	parser *jwt.Parser
}

// NewTokenService creates a TokenService.
func NewTokenService(cfg Config) *TokenService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultTokenExpiry
	}
	switch {
	case cfg.Leeway == 0:
		cfg.Leeway = DefaultLeeway
	case cfg.Leeway < 0:
		cfg.Leeway = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenService{
		key: []byte(cfg.SigningKey),
		cfg: cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.Leeway),
			jwt.WithTimeFunc(cfg.Now),
		),
	}
}

// Issue signs a token for subject. It returns the token and its expiry.
func (s *TokenService) Issue(subject string, roles ...string) (string, time.Time, error) {
	if len(s.key) == 0 {
		return "", time.Time{}, ErrMissingSigningKey
	}

	now := s.cfg.Now()
	expiresAt := now.Add(s.cfg.Expiry)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Roles: roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token. Errors wrap ErrInvalidToken or
// ErrTokenExpired.
func (s *TokenService) Validate(token string) (*Claims, error) {
	if len(s.key) == 0 {
		return nil, ErrMissingSigningKey
	}

	var claims Claims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &claims, nil
}
