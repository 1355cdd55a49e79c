package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAuthServiceRoundTrip(t *testing.T) {
	auth, err := NewAuthService(testSecret, time.Hour)
	require.NoError(t, err)

	token, err := auth.GenerateToken("acme")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."))

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.Tenant)
}

func TestAuthServiceRejectsShortSecret(t *testing.T) {
	_, err := NewAuthService("short", time.Hour)
	assert.Error(t, err)
}

func TestAuthServiceRejectsForeignSignature(t *testing.T) {
	issuer, err := NewAuthService(testSecret, time.Hour)
	require.NoError(t, err)
	other, err := NewAuthService(strings.Repeat("x", 32), time.Hour)
	require.NoError(t, err)

	token, err := issuer.GenerateToken("acme")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthServiceRejectsExpired(t *testing.T) {
	auth, err := NewAuthService(testSecret, time.Minute)
	require.NoError(t, err)

	issued := time.Now().Add(-time.Hour)
	auth.now = func() time.Time { return issued }
	token, err := auth.GenerateToken("acme")
	require.NoError(t, err)

	auth.now = time.Now
	_, err = auth.ValidateToken(token)
	assert.Error(t, err)
}
