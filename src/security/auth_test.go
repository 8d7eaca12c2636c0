package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fundfolio/backend/src/config"
)

func TestMain(m *testing.M) {
	config.Cfg = &config.AppConfig{
		JWTSecret:         "test-secret-key-that-is-long-enough-32",
		AccessTokenExpiry: time.Minute,
	}
	m.Run()
}

func TestHashAndComparePassword(t *testing.T) {
	a := NewAuthService("secret")

	hash, err := a.HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.NoError(t, a.CompareHashAndPassword(hash, "hunter2"))
	assert.Error(t, a.CompareHashAndPassword(hash, "wrong"))
}

func TestGenerateAndValidateToken(t *testing.T) {
	a := NewAuthService(config.Cfg.JWTSecret)

	token, err := a.GenerateToken("42")
	require.NoError(t, err)

	sub, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "42", sub)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	a := NewAuthService(config.Cfg.JWTSecret)
	token, err := a.GenerateToken("42")
	require.NoError(t, err)

	other := NewAuthService("another-secret-key-that-is-long-enough")
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestGenerateRefreshTokenIsUnique(t *testing.T) {
	a := NewAuthService("secret")
	first, err := a.GenerateRefreshToken()
	require.NoError(t, err)
	second, err := a.GenerateRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
