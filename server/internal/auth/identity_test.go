package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestTrustVerifier(t *testing.T) {
	got, err := TrustVerifier{}.Verify(" u1 ", "")
	require.NoError(t, err)
	assert.Equal(t, "u1", got)

	_, err = TrustVerifier{}.Verify("  ", "")
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestJWTVerifier_Valid(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	tok := sign(t, "s3cret", jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	got, err := v.Verify("", tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", got)

	got, err = v.Verify("u1", tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", got)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier("s3cret")

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"wrong secret": sign(t, "other", jwt.RegisteredClaims{Subject: "u1"}),
		"expired": sign(t, "s3cret", jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}),
		"no subject": sign(t, "s3cret", jwt.RegisteredClaims{}),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify("", tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	tok := sign(t, "s3cret", jwt.RegisteredClaims{Subject: "u1"})
	_, err := v.Verify("u2", tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "claimed user must match subject")
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier("", "")
	require.NoError(t, err)
	assert.IsType(t, TrustVerifier{}, v)

	v, err = NewVerifier("jwt", "k")
	require.NoError(t, err)
	assert.IsType(t, &JWTVerifier{}, v)

	_, err = NewVerifier("jwt", "")
	assert.Error(t, err)

	_, err = NewVerifier("ldap", "")
	assert.Error(t, err)
}
