// Package auth issues and verifies bearer tokens and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fintrack/internal/core"
)

// Claims is the token payload. The subject carries the user id.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the lifetime of issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for userID that expires after the issuer's TTL.
func (i *TokenIssuer) Issue(userID string) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature and expiry and returns the user id.
func (i *TokenIssuer) Verify(token string) (string, error) {
	return i.parse(token, jwt.WithTimeFunc(i.now))
}

// VerifyIgnoringExpiry checks only the signature. It backs token refresh.
func (i *TokenIssuer) VerifyIgnoringExpiry(token string) (string, error) {
	return i.parse(token, jwt.WithoutClaimsValidation())
}

func (i *TokenIssuer) parse(token string, opts ...jwt.ParserOption) (string, error) {
	if token == "" {
		return "", fmt.Errorf("empty token: %w", core.ErrUnauthorized)
	}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("token expired: %w", core.ErrUnauthorized)
		}
		return "", fmt.Errorf("invalid token: %w", core.ErrUnauthorized)
	}
	if !parsed.Valid || claims.UserID == "" {
		return "", fmt.Errorf("invalid token claims: %w", core.ErrUnauthorized)
	}
	return claims.UserID, nil
}
