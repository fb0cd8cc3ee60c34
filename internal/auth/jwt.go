package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 7 * 24 * time.Hour

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Manager signs and validates user tokens with an HMAC secret
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager creates a token manager with the given secret
func NewManager(secret string) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    defaultTokenTTL,
	}, nil
}

// NewManagerFromEnv creates a token manager from the JWT_SECRET
// environment variable
func NewManagerFromEnv() (*Manager, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	return NewManager(secret)
}

// TokenTTL returns the lifetime of tokens issued by this manager.
// Callers reporting an expiry derive it from here so it cannot drift
// from the claim.
func (m *Manager) TokenTTL() time.Duration {
	return m.ttl
}

// GenerateUserToken generates a JWT token for user authentication
func (m *Manager) GenerateUserToken(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user ID cannot be empty")
	}

	claims := &JWTClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (m *Manager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
