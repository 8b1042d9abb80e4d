package service

import (
	"errors"
	"fmt"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

// JWTTokenService implements ports.TokenService using HS256 JWT.
// Identity itself is external: tokens only carry the caller's subject and role.
type JWTTokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
}

type roleClaims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTTokenService creates a new JWT token service.
func NewJWTTokenService(secret string, expiry time.Duration, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
	}
}

// Generate creates a signed JWT for subject with the given role.
func (s *JWTTokenService) Generate(subject string, role domain.Role) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("empty token subject")
	}

	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := roleClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses and validates a JWT token, returning the claims.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	var claims roleClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("missing subject claim")
	}

	switch claims.Role {
	case domain.RoleMerchant, domain.RoleCustomer:
	default:
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}

	return &ports.TokenClaims{
		Subject: claims.Subject,
		Role:    claims.Role,
	}, nil
}
