package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("sid-1", "owner@store.kr", "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", claims.SessionID)
	assert.Equal(t, "owner@store.kr", claims.Email)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := GenerateJWT("sid-1", "owner@store.kr", "s3cret", time.Hour)
	require.NoError(t, err)

	_, err = ParseJWT(token, "other")
	assert.ErrorIs(t, err, jwt.ErrSignatureInvalid)
}

func TestJWTRejectsExpired(t *testing.T) {
	claims := Claims{
		SessionID: "sid-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = ParseJWT(token, "s3cret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTRequiresSession(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = ParseJWT(token, "s3cret")
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)
}
