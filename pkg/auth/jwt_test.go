package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", "chat-api", time.Hour)
	id := uuid.New()

	token, err := svc.GenerateAccessToken(id, "ADMIN")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.ParticipantID)
	assert.Equal(t, "ADMIN", claims.ParticipantType)
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService("secret", "chat-api", time.Hour)
	other := NewJWTService("other-secret", "chat-api", time.Hour)
	expired := NewJWTService("secret", "chat-api", -time.Minute).(*jwtService)
	expired.expiry = -time.Minute

	foreign, err := other.GenerateAccessToken(uuid.New(), "USER")
	require.NoError(t, err)
	old, err := expired.GenerateAccessToken(uuid.New(), "USER")
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not.a.token",
		"wrong secret": foreign,
		"expired":      old,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
