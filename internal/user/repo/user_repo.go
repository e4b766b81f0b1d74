package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/launchkit/service-core/internal/user/entity"
)

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Columns selected for full entity scans; keep in sync with entity.User db tags.
const userColumns = `id, email, full_name, avatar_url, is_active, is_verified, google_id, apple_id, password_hash, verification_token, verification_expires, timezone, created_at, updated_at`

// EnsureTable creates the users table if not exists (idempotent).
// Convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  email CITEXT UNIQUE NOT NULL,
  full_name TEXT,
  avatar_url TEXT,
  is_active BOOLEAN NOT NULL DEFAULT true,
  is_verified BOOLEAN NOT NULL DEFAULT false,
  google_id TEXT UNIQUE,
  apple_id TEXT UNIQUE,
  password_hash TEXT,
  verification_token TEXT,
  verification_expires TIMESTAMPTZ,
  timezone TEXT NOT NULL DEFAULT 'UTC',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
CREATE INDEX IF NOT EXISTS idx_users_verification_token ON users(verification_token);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new user row. The caller supplies the id. Timestamps are
// assigned by the database and scanned back into the entity.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, email, full_name, avatar_url, is_active, is_verified, google_id, apple_id, password_hash, verification_token, verification_expires, timezone)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,COALESCE(NULLIF($12,''),'UTC'))
		RETURNING created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, q,
		u.ID, u.Email, u.FullName, u.AvatarURL, u.IsActive, u.IsVerified,
		u.GoogleID, u.AppleID, u.PasswordHash, u.VerificationToken, u.VerificationExpires, u.Timezone)
	return row.Scan(&u.CreatedAt, &u.UpdatedAt)
}

// GetByID fetches a full user row or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns a user matched by email (case-insensitive via citext).
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email=$1`, email); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByGoogleID fetches by linked Google account id.
func (r *UserRepo) GetByGoogleID(ctx context.Context, googleID string) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE google_id=$1`, googleID); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByAppleID fetches by linked Apple account id.
func (r *UserRepo) GetByAppleID(ctx context.Context, appleID string) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE apple_id=$1`, appleID); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByVerificationToken fetches the user holding a pending magic-link token.
func (r *UserRepo) GetByVerificationToken(ctx context.Context, token string) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE verification_token=$1`, token); err != nil {
		return nil, err
	}
	return &u, nil
}

// LinkGoogle attaches a Google account id to an existing user.
func (r *UserRepo) LinkGoogle(ctx context.Context, id int64, googleID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET google_id=$2, updated_at=NOW() WHERE id=$1`, id, googleID)
	return err
}

// LinkApple attaches an Apple account id to an existing user.
func (r *UserRepo) LinkApple(ctx context.Context, id int64, appleID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET apple_id=$2, updated_at=NOW() WHERE id=$1`, id, appleID)
	return err
}

// SetVerificationToken stores a fresh magic-link token and expiry.
func (r *UserRepo) SetVerificationToken(ctx context.Context, id int64, token string, expires time.Time) error {
	const q = `UPDATE users SET verification_token=$2, verification_expires=$3, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id, token, expires)
	return err
}

// ConsumeVerificationToken clears the pending token and marks the account
// verified and active in one statement.
func (r *UserRepo) ConsumeVerificationToken(ctx context.Context, id int64) error {
	const q = `UPDATE users SET verification_token=NULL, verification_expires=NULL, is_verified=true, is_active=true, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// SetActive toggles the account's active flag.
func (r *UserRepo) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	return err
}
