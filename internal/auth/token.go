// Package auth issues and verifies the bearer tokens that carry a caller's
// ledger identity over HTTP.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier maps a bearer token to the identity it was issued for.
type TokenVerifier interface {
	Verify(tokenString string) (principal string, err error)
}

// JWTAuthority signs and verifies HS256 tokens. The "sub" claim is the
// ledger identity.
type JWTAuthority struct {
	secret []byte
	now    func() time.Time
}

func NewJWTAuthority(secret []byte) *JWTAuthority {
	return &JWTAuthority{secret: secret, now: time.Now}
}

func (a *JWTAuthority) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}

// Issue mints a token for principal valid for ttl.
func (a *JWTAuthority) Issue(principal string, ttl time.Duration) (string, error) {
	if principal == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	now := a.now()
	claims := jwt.MapClaims{
		"sub": principal,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
