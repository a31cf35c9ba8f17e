package jwtutil

import (
	"testing"

	"timetracker-service/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(expirationHours int) *config.JWTConfig {
	return &config.JWTConfig{
		SigningKey:        "test-signing-key",
		ExpirationHours:   expirationHours,
		InvitationExpDays: 7,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	Initialize(testConfig(1))

	token, err := GenerateToken(42, 7, "user@example.com", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, uint(7), claims.TenantID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	Initialize(testConfig(1))

	token, err := GenerateToken(1, 1, "user@example.com", "user")
	require.NoError(t, err)

	_, err = ValidateToken(token + "x")
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	Initialize(testConfig(-1))

	token, err := GenerateToken(1, 1, "user@example.com", "user")
	require.NoError(t, err)

	Initialize(testConfig(1))
	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	Initialize(testConfig(1))
	token, err := GenerateToken(1, 1, "user@example.com", "user")
	require.NoError(t, err)

	Initialize(&config.JWTConfig{SigningKey: "another-key", ExpirationHours: 1})
	_, err = ValidateToken(token)
	assert.Error(t, err)

	Initialize(testConfig(1))
}

func TestInvitationTokenRoundTrip(t *testing.T) {
	Initialize(testConfig(1))

	token, err := GenerateInvitationToken("invited@example.com", 3, "user")
	require.NoError(t, err)

	claims, err := ValidateInvitationToken(token)
	require.NoError(t, err)
	assert.Equal(t, "invited@example.com", claims.Email)
	assert.Equal(t, uint(3), claims.TenantID)
	assert.Equal(t, "user", claims.Role)
}

func TestAccessTokenIsNotAnInvitation(t *testing.T) {
	Initialize(testConfig(1))

	token, err := GenerateToken(1, 1, "user@example.com", "user")
	require.NoError(t, err)

	_, err = ValidateInvitationToken(token)
	assert.Error(t, err)
}
