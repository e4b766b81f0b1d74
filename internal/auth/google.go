package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// GoogleVerifier validates Google-issued ID tokens against Google's
// published signing keys.
type GoogleVerifier struct {
	ClientID string
	Keys     *JWKSCache
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{ClientID: clientID, Keys: NewJWKSCache(googleJWKSURL)}
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// Verify checks signature, audience and issuer of a Google ID token and
// returns the normalized identity.
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (*ExternalIdentity, error) {
	claims := &googleClaims{}
	tkn, err := jwt.ParseWithClaims(credential, claims, v.keyfunc(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.ClientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("google token: %w", err)
	}
	if !tkn.Valid {
		return nil, errors.New("google token: invalid")
	}
	// Google signs with either issuer form
	if claims.Issuer != "accounts.google.com" && claims.Issuer != "https://accounts.google.com" {
		return nil, fmt.Errorf("google token: wrong issuer %q", claims.Issuer)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, errors.New("google token: missing subject or email")
	}
	id := &ExternalIdentity{
		Provider: "google",
		Subject:  claims.Subject,
		Email:    claims.Email,
	}
	if claims.Name != "" {
		id.Name = &claims.Name
	}
	if claims.Picture != "" {
		id.AvatarURL = &claims.Picture
	}
	return id, nil
}

func (v *GoogleVerifier) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing key id")
		}
		return v.Keys.Key(ctx, kid)
	}
}
