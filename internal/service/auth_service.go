package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oraculo/protocol/internal/config"
	"github.com/oraculo/protocol/internal/domain"
)

// Roles carried in access tokens.
const (
	RoleUser      = "user"
	RoleAuthority = "authority"
)

// ──────────────────────────────────────────────────────────────────────────────
// JWT claims
// ──────────────────────────────────────────────────────────────────────────────

// AppClaims extends jwt.RegisteredClaims with application-specific fields.
// Subject is the caller's ledger account.
type AppClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	TokenType string `json:"type"`
}

// Account returns the ledger account the token identifies.
func (c *AppClaims) Account() domain.Account { return domain.Account(c.Subject) }

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService issues and verifies the bearer tokens that identify callers.
// Signing keys and account custody live outside this service.
type AuthService struct {
	cfg       config.JWTConfig
	authority domain.Account
	now       Clock
}

// NewAuthService creates an AuthService. Tokens for authority carry the
// authority role.
func NewAuthService(cfg config.JWTConfig, authority domain.Account) *AuthService {
	return &AuthService{cfg: cfg, authority: authority, now: systemClock}
}

// SetClock replaces the time source.
func (s *AuthService) SetClock(now Clock) { s.now = now }

// IssueToken signs an access token for account.
func (s *AuthService) IssueToken(account domain.Account) (string, error) {
	if account == "" {
		return "", domain.ErrUnauthorized
	}
	role := RoleUser
	if account == s.authority {
		role = RoleAuthority
	}

	now := s.now()
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(account),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
		Role:      role,
		TokenType: "access",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		return "", fmt.Errorf("auth_service.IssueToken: sign: %w", err)
	}
	return tok, nil
}

// ParseAccessToken validates signature, algorithm, expiry and token type.
func (s *AuthService) ParseAccessToken(tokenString string) (*AppClaims, error) {
	secret := []byte(s.cfg.AccessSecret)
	tok, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*AppClaims)
	if !ok || !tok.Valid || claims.TokenType != "access" || claims.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
