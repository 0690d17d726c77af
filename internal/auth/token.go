// Package auth issues and verifies the bearer tokens that gate the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coursecast/internal/apperr"
	"coursecast/internal/models"
)

// DefaultTokenTTL is how long an issued access token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// Claims is the verified identity carried by a bearer token.
type Claims struct {
	UserID string
	Role   models.Role
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 access tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a TokenManager. ttl <= 0 falls back to
// DefaultTokenTTL.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token identifying the given user.
func (m *TokenManager) Issue(userID string, role models.Role) (string, error) {
	now := m.now()
	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", apperr.Wrapf(apperr.Internal, err, "sign token")
	}
	return signed, nil
}

// Verify parses and validates a bearer token, returning the identity it
// carries. Expired and malformed tokens come back as Unauthorized.
func (m *TokenManager) Verify(tokenString string) (Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, apperr.New(apperr.Unauthorized, "token is expired")
		}
		return Claims{}, apperr.New(apperr.Unauthorized, "invalid token")
	}
	if !token.Valid || claims.Subject == "" {
		return Claims{}, apperr.New(apperr.Unauthorized, "invalid token")
	}
	role := models.Role(claims.Role)
	if !role.Valid() {
		return Claims{}, apperr.New(apperr.Unauthorized, "invalid token")
	}
	return Claims{UserID: claims.Subject, Role: role}, nil
}
