package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity modes.
const (
	ModeTrust = "trust"
	ModeJWT   = "jwt"
)

var (
	// ErrInvalidToken is returned when an identify token fails verification.
	ErrInvalidToken = errors.New("auth: invalid identity token")
	// ErrMissingIdentity is returned when an identify envelope names nobody.
	ErrMissingIdentity = errors.New("auth: identify carries no user")
)

// IdentityVerifier resolves the user id claimed by an identify envelope.
type IdentityVerifier interface {
	Verify(userID, token string) (string, error)
}

// TrustVerifier accepts the claimed user id as sent.
type TrustVerifier struct{}

// Verify returns userID, or ErrMissingIdentity when it is blank.
func (TrustVerifier) Verify(userID, _ string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrMissingIdentity
	}
	return userID, nil
}

// JWTVerifier validates HS256 tokens and takes the user id from the subject.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses token and returns its subject. A userID that disagrees with
// the subject is rejected.
func (v *JWTVerifier) Verify(userID, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", ErrInvalidToken
	}
	if userID != "" && userID != sub {
		return "", fmt.Errorf("%w: subject does not match userId", ErrInvalidToken)
	}
	return sub, nil
}

// NewVerifier returns the verifier for mode. secret is only used by jwt.
func NewVerifier(mode, secret string) (IdentityVerifier, error) {
	switch mode {
	case "", ModeTrust:
		return TrustVerifier{}, nil
	case ModeJWT:
		if secret == "" {
			return nil, errors.New("auth: jwt identity mode needs a secret")
		}
		return NewJWTVerifier(secret), nil
	}
	return nil, fmt.Errorf("auth: unknown identity mode %q", mode)
}
