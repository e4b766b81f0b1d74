package auth

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockTokenService(t *testing.T) (*TokenService, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewTokenService(db, "test-secret", 30*time.Minute, 7*24*time.Hour), mock
}

func TestIssueBundleAndVerifyAccess(t *testing.T) {
	svc, mock := newMockTokenService(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO auth_refresh_sessions (token, user_id, expires_at) VALUES ($1, $2, $3) RETURNING id`)).
		WithArgs(sqlmock.AnyArg(), int64(42), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	bundle, err := svc.IssueBundle(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, "bearer", bundle.TokenType)
	assert.Equal(t, 1800, bundle.ExpiresIn)
	assert.NotEmpty(t, bundle.AccessToken)
	assert.NotEmpty(t, bundle.RefreshToken)

	userID, err := svc.VerifyAccess(bundle.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyAccessRejectsBadTokens(t *testing.T) {
	svc, _ := newMockTokenService(t)

	_, err := svc.VerifyAccess("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	// signed with a different secret
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.VerifyAccess(foreign)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	// expired
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.VerifyAccess(expired)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)

	// no expiry claim at all
	unexpiring, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.VerifyAccess(unexpiring)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestRedeemRotatesSession(t *testing.T) {
	svc, mock := newMockTokenService(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, expires_at FROM auth_refresh_sessions WHERE token = $1`)).
		WithArgs("good-token").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at"}).
			AddRow(int64(7), int64(42), time.Now().Add(time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM auth_refresh_sessions WHERE token = $1`)).
		WithArgs("good-token").
		WillReturnResult(sqlmock.NewResult(0, 1))

	userID, err := svc.Redeem(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemUnknownToken(t *testing.T) {
	svc, mock := newMockTokenService(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, expires_at FROM auth_refresh_sessions WHERE token = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at"}))

	_, err := svc.Redeem(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = svc.Redeem(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemExpiredTokenIsRemovedAndRejected(t *testing.T) {
	svc, mock := newMockTokenService(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, expires_at FROM auth_refresh_sessions WHERE token = $1`)).
		WithArgs("stale").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at"}).
			AddRow(int64(7), int64(42), time.Now().Add(-time.Minute)))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM auth_refresh_sessions WHERE token = $1`)).
		WithArgs("stale").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.Redeem(context.Background(), "stale")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke(t *testing.T) {
	svc, mock := newMockTokenService(t)

	// empty token is a no-op, no statement expected
	require.NoError(t, svc.Revoke(context.Background(), ""))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM auth_refresh_sessions WHERE token = $1`)).
		WithArgs("some-token").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, svc.Revoke(context.Background(), "some-token"))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM auth_refresh_sessions WHERE user_id = $1`)).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	require.NoError(t, svc.RevokeAllForUser(context.Background(), 42))

	require.NoError(t, mock.ExpectationsWereMet())
}
