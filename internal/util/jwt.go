package util

import (
	"errors"
	"time"

	"fintrack/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the session token payload. RegisteredClaims.ID carries the
// session id and Subject the user id.
type Claims struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	PhotoURL string `json:"picture,omitempty"`
	Guest    bool   `json:"guest"`
	jwt.RegisteredClaims
}

// User rebuilds the session user from the claims.
func (c *Claims) User() models.User {
	return models.User{
		ID:       c.Subject,
		Name:     c.Name,
		Email:    c.Email,
		PhotoURL: c.PhotoURL,
		IsGuest:  c.Guest,
	}
}

// GenerateToken signs a session token for user valid for ttl.
func GenerateToken(secret, issuer string, user models.User, sessionID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := &Claims{
		Name:     user.Name,
		Email:    user.Email,
		PhotoURL: user.PhotoURL,
		Guest:    user.IsGuest,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   user.ID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies tokenStr and returns its claims.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("token without subject or session id")
	}
	return claims, nil
}
