package entity

import "time"

// User represents an account row in the `users` table. Provider ids and
// credential material are never serialized in API responses.
type User struct {
	ID         int64   `db:"id" json:"id"`
	Email      string  `db:"email" json:"email"`
	FullName   *string `db:"full_name" json:"full_name,omitempty"`
	AvatarURL  *string `db:"avatar_url" json:"avatar_url,omitempty"`
	IsActive   bool    `db:"is_active" json:"is_active"`
	IsVerified bool    `db:"is_verified" json:"is_verified"`

	// External identity providers
	GoogleID *string `db:"google_id" json:"-"`
	AppleID  *string `db:"apple_id" json:"-"`

	// Password auth (optional; nil for social-only accounts)
	PasswordHash *string `db:"password_hash" json:"-"`

	// Magic link verification
	VerificationToken   *string    `db:"verification_token" json:"-"`
	VerificationExpires *time.Time `db:"verification_expires" json:"-"`

	Timezone  string    `db:"timezone" json:"timezone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
