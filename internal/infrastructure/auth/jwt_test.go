package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesboard/backend/internal/infrastructure/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:                "test-secret-key-that-is-long-enough",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "salesboard-backend-test",
	}
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	token, err := svc.GenerateAccessToken(GenerateTokenInput{
		Role:     "agent",
		AgentID:  "agent-42",
		Username: "pat",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "agent", claims.Role)
	assert.Equal(t, "agent-42", claims.AgentID)
	assert.Equal(t, "pat", claims.Username)
	assert.Equal(t, "salesboard-backend-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestGenerateAccessTokenRequiresRole(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	_, err := svc.GenerateAccessToken(GenerateTokenInput{Username: "pat"})
	assert.ErrorIs(t, err, ErrMissingRole)
}

func TestValidateAccessTokenRejectsWrongSecret(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	token, err := svc.GenerateAccessToken(GenerateTokenInput{Role: "manager"})
	require.NoError(t, err)

	other := NewJWTService(config.JWTConfig{
		Secret:                "a-completely-different-secret-value",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "salesboard-backend-test",
	})
	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTokenExpiration = -1 * time.Minute
	svc := NewJWTService(cfg)

	token, err := svc.GenerateAccessToken(GenerateTokenInput{Role: "manager"})
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateAccessTokenRejectsWrongSigningMethod(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	// Unsigned token must never validate.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: "manager"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessTokenRejectsMissingRole(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTConfig().Secret))
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(raw)
	assert.ErrorIs(t, err, ErrMissingRole)
}

func TestValidateAccessTokenRejectsGarbage(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	_, err := svc.ValidateAccessToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
