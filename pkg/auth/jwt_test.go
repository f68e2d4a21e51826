package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebook-api/internal/model"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(JWTConfig{Secret: []byte("secret"), Issuer: "carebook"})
	actor := model.Actor{ID: uuid.New(), Role: model.RoleDoctor}

	token, err := svc.GenerateAccessToken(actor, time.Hour)
	require.NoError(t, err)

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService(JWTConfig{Secret: []byte("secret"), Issuer: "carebook"})
	actor := model.Actor{ID: uuid.New(), Role: model.RolePatient}

	expired, err := svc.GenerateAccessToken(actor, -time.Minute)
	require.NoError(t, err)

	other := NewJWTService(JWTConfig{Secret: []byte("other"), Issuer: "carebook"})
	wrongKey, err := other.GenerateAccessToken(actor, time.Hour)
	require.NoError(t, err)

	otherIssuer := NewJWTService(JWTConfig{Secret: []byte("secret"), Issuer: "someone-else"})
	wrongIssuer, err := otherIssuer.GenerateAccessToken(actor, time.Hour)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    "carebook",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "janitor",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"unknown role": badRole,
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
