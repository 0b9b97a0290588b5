package utils

import (
	"time" // Token expiry

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// DefaultTokenTTL is how long a kiosk session token stays valid
const DefaultTokenTTL = 12 * time.Hour

// Claims binds a token to a kiosk session
type Claims struct {
	SessionID            string `json:"sid"`   // Server-side session id
	Email                string `json:"email"` // Signed-in identity
	jwt.RegisteredClaims        // Standard JWT claims
}

// GenerateJWT signs a token for session sid
func GenerateJWT(sid, email, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := Claims{
		SessionID: sid,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)), // Expiry
			IssuedAt:  jwt.NewNumericDate(now),          // Issued now
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // HS256 like every token we issue
	return token.SignedString([]byte(secret))
}

// ParseJWT validates tokenStr and returns its claims
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.SessionID != "" {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
