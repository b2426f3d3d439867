package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	// ErrExpiredToken is returned when a token's expiry has passed.
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("token is invalid")
)

// Claims is the JWT payload: the subject is the user id.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Maker issues and verifies HS256 access tokens.
type Maker struct {
	secret   []byte
	duration time.Duration
}

// NewMaker creates a token maker. The secret must be long enough that the
// HMAC is not trivially brute-forced.
func NewMaker(secret string, duration time.Duration) (*Maker, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 characters, got %d", len(secret))
	}
	return &Maker{secret: []byte(secret), duration: duration}, nil
}

// CreateToken signs a token for the given user id.
func (m *Maker) CreateToken(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks the signature and expiry and returns the user id.
func (m *Maker) VerifyToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
