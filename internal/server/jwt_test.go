package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/content-pipeline/internal/config"
)

func setupTestJWTService(_ *testing.T, expirationHours int) *JWTService {
	return NewJWTService(&config.JWTConfig{
		Secret:          "test-secret-key-that-is-long-enough",
		ExpirationHours: expirationHours,
		Issuer:          config.DefaultJWTIssuer,
	})
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := setupTestJWTService(t, 24)

	token, err := svc.GenerateToken("ops")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, config.DefaultJWTIssuer, claims.Issuer)

	subject, err := svc.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	got, err := subject.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "ops", got)
}

func TestJWTService_GenerateToken_EmptySubject(t *testing.T) {
	_, err := setupTestJWTService(t, 24).GenerateToken("")
	assert.Error(t, err)
}

func TestJWTService_ValidateToken_InvalidSignature(t *testing.T) {
	token, err := setupTestJWTService(t, 24).GenerateToken("ops")
	require.NoError(t, err)

	other := NewJWTService(&config.JWTConfig{Secret: "a-different-secret", ExpirationHours: 24, Issuer: config.DefaultJWTIssuer})
	_, err = other.ValidateToken(token)
	assert.ErrorContains(t, err, "invalid token signature")
}

func TestJWTService_ValidateToken_Malformed(t *testing.T) {
	svc := setupTestJWTService(t, 24)
	for _, tok := range []string{"", "not-a-token", "a.b", "a.b.c"} {
		_, err := svc.ValidateToken(tok)
		assert.Error(t, err, "token %q", tok)
	}
}

func TestJWTService_TokenExpiration(t *testing.T) {
	svc := setupTestJWTService(t, 1)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	token, err := svc.GenerateToken("ops")
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(59 * time.Minute) }
	_, err = svc.ValidateToken(token)
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = svc.ValidateToken(token)
	assert.ErrorContains(t, err, "token expired")
}

func TestJWTService_RejectsWrongIssuer(t *testing.T) {
	minted := NewJWTService(&config.JWTConfig{Secret: "s3cret", ExpirationHours: 1, Issuer: "someone-else"})
	token, err := minted.GenerateToken("ops")
	require.NoError(t, err)

	checker := NewJWTService(&config.JWTConfig{Secret: "s3cret", ExpirationHours: 1, Issuer: config.DefaultJWTIssuer})
	_, err = checker.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsNoneAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "ops", Issuer: config.DefaultJWTIssuer}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = setupTestJWTService(t, 1).ValidateToken(token)
	assert.Error(t, err)
}
