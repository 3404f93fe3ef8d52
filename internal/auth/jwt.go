// Package auth validates bearer tokens and yields the opaque user id carried in them.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/satriahrh/peacepal/server/domain/repositories"
)

const defaultTokenTTL = 7 * 24 * time.Hour

var (
	ErrMissingToken  = errors.New("bearer token is required")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingUserID = errors.New("token carries no user id")
)

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWT signs and validates HS256 user tokens
type JWT struct {
	secret []byte
	ttl    time.Duration
}

var _ repositories.IdentityProvider = (*JWT)(nil)

// NewJWT creates a token validator for the given secret
func NewJWT(secret string, ttl time.Duration) (*JWT, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &JWT{secret: []byte(secret), ttl: ttl}, nil
}

// GenerateUserToken generates a JWT token for user authentication
func (j *JWT) GenerateUserToken(userID string) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}
	now := time.Now()
	claims := &JWTClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (j *JWT) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}
	return claims, nil
}

// UserID implements repositories.IdentityProvider. Browsers cannot set headers on a
// WebSocket handshake, so the token query parameter is accepted as well.
func (j *JWT) UserID(r *http.Request) (string, error) {
	token := BearerToken(r)
	if token == "" {
		return "", ErrMissingToken
	}
	claims, err := j.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// BearerToken extracts the token from the Authorization header or the token query parameter
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return r.URL.Query().Get("token")
}
