package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	a := NewJWTAuthority([]byte("test-secret"))

	token, err := a.Issue("alice", time.Hour)
	require.NoError(t, err)

	principal, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", principal)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := NewJWTAuthority([]byte("one")).Issue("alice", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTAuthority([]byte("two")).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpired(t *testing.T) {
	a := NewJWTAuthority([]byte("secret"))
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := a.Issue("alice", time.Hour)
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTAuthority([]byte("secret")).Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMissingSubject(t *testing.T) {
	secret := []byte("secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	_, err = NewJWTAuthority(secret).Verify(signed)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestIssueRequiresPrincipal(t *testing.T) {
	_, err := NewJWTAuthority([]byte("secret")).Issue("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", PrincipalFrom(ctx))

	ctx = WithPrincipal(ctx, "bob")
	assert.Equal(t, "bob", PrincipalFrom(ctx))
}
