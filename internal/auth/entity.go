package auth

import "time"

// TokenBundle is the credential pair issued to clients. Access and refresh
// credentials are always minted and replaced together.
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshSession represents a persisted refresh credential.
type RefreshSession struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

// ExternalIdentity is the normalized result of verifying a provider-issued
// identity token (Google, Apple).
type ExternalIdentity struct {
	Provider  string
	Subject   string
	Email     string
	Name      *string
	AvatarURL *string
}
