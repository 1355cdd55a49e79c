package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "pulse-server"

// AuthService issues and validates tenant-scoped JWTs
type AuthService struct {
	secretKey   []byte
	tokenExpiry time.Duration
	now         func() time.Time
}

// TenantClaims is the JWT claims structure
type TenantClaims struct {
	Tenant string `json:"tenant"`
	jwt.RegisteredClaims
}

// NewAuthService creates an auth service. The secret must be at least 32
// bytes for HMAC-SHA256.
func NewAuthService(secretKey string, tokenExpiry time.Duration) (*AuthService, error) {
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key is %d bytes, need at least 32", len(secretKey))
	}
	if tokenExpiry <= 0 {
		tokenExpiry = 90 * 24 * time.Hour
	}
	return &AuthService{
		secretKey:   []byte(secretKey),
		tokenExpiry: tokenExpiry,
		now:         time.Now,
	}, nil
}

// GenerateToken creates a signed token for tenant. An empty tenant yields
// an operator token that sees every tenant.
func (a *AuthService) GenerateToken(tenant string) (string, error) {
	now := a.now()
	claims := TenantClaims{
		Tenant: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secretKey)
}

// ValidateToken verifies and parses a token
func (a *AuthService) ValidateToken(tokenString string) (*TenantClaims, error) {
	claims := &TenantClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
