package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	appleJWKSURL = "https://appleid.apple.com/auth/keys"
	appleIssuer  = "https://appleid.apple.com"
)

// AppleVerifier validates Apple Sign-In identity tokens against Apple's
// published signing keys.
type AppleVerifier struct {
	ClientID string
	Keys     *JWKSCache
}

func NewAppleVerifier(clientID string) *AppleVerifier {
	return &AppleVerifier{ClientID: clientID, Keys: NewJWKSCache(appleJWKSURL)}
}

type appleClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AppleUserName is the optional name payload Apple includes only on the
// first sign-in.
type AppleUserName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Verify checks signature, audience and issuer of an Apple identity token.
// The display name, when present, comes from the first-sign-in user payload
// rather than the token.
func (v *AppleVerifier) Verify(ctx context.Context, identityToken string, name *AppleUserName) (*ExternalIdentity, error) {
	claims := &appleClaims{}
	tkn, err := jwt.ParseWithClaims(identityToken, claims, v.keyfunc(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.ClientID),
		jwt.WithIssuer(appleIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("apple token: %w", err)
	}
	if !tkn.Valid {
		return nil, errors.New("apple token: invalid")
	}
	if claims.Subject == "" {
		return nil, errors.New("apple token: missing subject")
	}
	id := &ExternalIdentity{
		Provider: "apple",
		Subject:  claims.Subject,
		Email:    claims.Email,
	}
	if name != nil {
		full := strings.TrimSpace(strings.TrimSpace(name.FirstName) + " " + strings.TrimSpace(name.LastName))
		if full != "" {
			id.Name = &full
		}
	}
	return id, nil
}

func (v *AppleVerifier) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing key id")
		}
		return v.Keys.Key(ctx, kid)
	}
}
