package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sitecms-api/internal/models"
	appErrors "github.com/noah-isme/sitecms-api/pkg/errors"
)

func signTestToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "sitecms", Audience: "admin"})
	now := time.Now()
	token := signTestToken(t, "secret", &models.JWTClaims{
		UserID: "user-1",
		Role:   models.RoleAdmin,
		Email:  "ops@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "sitecms",
			Audience:  jwt.ClaimStrings{"admin"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "ops@example.com", claims.Identity())
}

func TestAuthServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "sitecms"})
	now := time.Now()

	cases := map[string]string{
		"wrong secret": signTestToken(t, "other", &models.JWTClaims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Issuer: "sitecms", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}),
		"expired":      signTestToken(t, "secret", &models.JWTClaims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Issuer: "sitecms", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour))}}),
		"wrong issuer": signTestToken(t, "secret", &models.JWTClaims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Issuer: "other", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}),
		"no identity":  signTestToken(t, "secret", &models.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "sitecms", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}
