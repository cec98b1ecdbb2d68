package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hvgateway/internal/model"
)

// AccessTokenTTL and RefreshTokenTTL bound the two token lifetimes issued
// at login, matching the gateway's cookie TTLs: refresh
// tokens outlive access tokens so a client can silently renew without
// re-prompting credentials.
const (
	AccessTokenTTL  = 1 * time.Hour
	RefreshTokenTTL = 24 * time.Hour
)

type claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs a JWT for the given subject (the username), valid for
// ttl, using secret.
func IssueToken(secret, username string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(secret))
}

// VerifyToken validates signature and expiry and returns the decoded Claims.
func VerifyToken(secret, tokenString string) (*model.Claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("auth: token invalid")
	}
	return &model.Claims{
		Subject:   c.Subject,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
