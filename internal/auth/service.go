package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	repo "github.com/launchkit/service-core/internal/auth/repo"
)

var (
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// TokenService issues HS256 access tokens paired with opaque, DB-backed
// refresh credentials. Refresh credentials rotate on every redemption.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	sessions   *repo.RefreshRepo
}

func NewTokenService(db *sqlx.DB, secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		sessions:   repo.NewRefreshRepo(db),
	}
}

// EnsureSchema creates the refresh session table (development convenience).
func (s *TokenService) EnsureSchema(ctx context.Context) error {
	return s.sessions.EnsureTable(ctx)
}

// IssueBundle mints a new access/refresh pair for the user and persists the
// refresh session. The pair is created and returned together so callers
// never observe a half-replaced credential state.
func (s *TokenService) IssueBundle(ctx context.Context, userID int64) (*TokenBundle, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(s.accessTTL).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	rtBytes := make([]byte, 32)
	if _, err := rand.Read(rtBytes); err != nil {
		return nil, err
	}
	refresh := base64.RawURLEncoding.EncodeToString(rtBytes)
	if _, err := s.sessions.Save(ctx, refresh, userID, now.Add(s.refreshTTL)); err != nil {
		return nil, err
	}

	return &TokenBundle{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess validates an access token and returns the subject user id.
func (s *TokenService) VerifyAccess(tokenStr string) (int64, error) {
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !tkn.Valid {
		return 0, ErrInvalidAccessToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, ErrInvalidAccessToken
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, ErrInvalidAccessToken
	}
	return userID, nil
}

// Redeem validates a refresh credential and revokes it (rotation), returning
// the owning user id. Unknown and expired credentials map to
// ErrInvalidRefreshToken; expired sessions are removed on sight.
func (s *TokenService) Redeem(ctx context.Context, refreshToken string) (int64, error) {
	if refreshToken == "" {
		return 0, ErrInvalidRefreshToken
	}
	_, userID, expiresAt, err := s.sessions.Get(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInvalidRefreshToken
		}
		return 0, err
	}
	if err := s.sessions.Delete(ctx, refreshToken); err != nil {
		// if revoke fails, reject to avoid issuing a new bundle alongside a live old one
		return 0, ErrInvalidRefreshToken
	}
	if expiresAt.Before(time.Now()) {
		return 0, ErrInvalidRefreshToken
	}
	return userID, nil
}

// Revoke removes a refresh session. Best-effort for logout; unknown tokens
// are not an error.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Delete(ctx, refreshToken)
}

// RevokeAllForUser terminates every session of a user.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID int64) error {
	return s.sessions.DeleteForUser(ctx, userID)
}
