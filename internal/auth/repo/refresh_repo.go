package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// RefreshRepo persists opaque refresh credentials. The raw token is the
// primary key; sessions are deleted on rotation and logout.
type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

// EnsureTable creates the refresh session table if not exists (idempotent).
func (r *RefreshRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS auth_refresh_sessions (
  token TEXT PRIMARY KEY,
  id BIGSERIAL,
  user_id BIGINT NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_auth_refresh_sessions_user_id ON auth_refresh_sessions(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Save persists a new refresh session and returns its row id.
func (r *RefreshRepo) Save(ctx context.Context, token string, userID int64, expiresAt time.Time) (int64, error) {
	const q = `INSERT INTO auth_refresh_sessions (token, user_id, expires_at) VALUES ($1, $2, $3) RETURNING id`
	var id int64
	row := r.db.QueryRowxContext(ctx, q, token, userID, expiresAt)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Get looks up a session by raw token.
func (r *RefreshRepo) Get(ctx context.Context, token string) (int64, int64, time.Time, error) {
	var id, userID int64
	var expiresAt time.Time
	const q = `SELECT id, user_id, expires_at FROM auth_refresh_sessions WHERE token = $1`
	row := r.db.QueryRowxContext(ctx, q, token)
	if err := row.Scan(&id, &userID, &expiresAt); err != nil {
		return 0, 0, time.Time{}, err
	}
	return id, userID, expiresAt, nil
}

// Delete removes a session by raw token.
func (r *RefreshRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_refresh_sessions WHERE token = $1`, token)
	return err
}

// DeleteForUser revokes every session belonging to a user.
func (r *RefreshRepo) DeleteForUser(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_refresh_sessions WHERE user_id = $1`, userID)
	return err
}

// DeleteExpired clears sessions past their expiry; returns rows removed.
func (r *RefreshRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_refresh_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
