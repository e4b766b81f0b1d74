package user

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmoiron/sqlx"
	"github.com/launchkit/service-core/internal/user/entity"
	userrepo "github.com/launchkit/service-core/internal/user/repo"
	"github.com/launchkit/service-core/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrDisabled        = errors.New("account disabled")
	ErrBadCredentials  = errors.New("invalid email or password")
	ErrEmailTaken      = errors.New("email already registered")
	ErrTokenInvalid    = errors.New("invalid or expired token")
	ErrNewUsersBlocked = errors.New("new user registration disabled")
)

// UserService orchestrates account lifecycle and authentication flows.
type UserService struct {
	repo   *userrepo.UserRepo
	hasher PasswordHasher
}

func NewUserService(db *sqlx.DB, r *userrepo.UserRepo, hasher PasswordHasher) *UserService {
	if r == nil {
		r = userrepo.NewUserRepo(db)
	}
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{repo: r, hasher: hasher}
}

// EnsureSchema creates backing tables (development convenience).
func (s *UserService) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureTable(ctx)
}

// Get returns a user by id, mapping missing rows to ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Register creates a password-backed account. New accounts start unverified.
func (s *UserService) Register(ctx context.Context, email, password string, fullName *string) (*entity.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	id, err := utilities.NewSnowflakeID()
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		ID:           id,
		Email:        email,
		FullName:     fullName,
		IsActive:     true,
		IsVerified:   false,
		PasswordHash: &hash,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// AuthenticatePassword validates email/password credentials. Missing users,
// password-less accounts and wrong passwords all map to ErrBadCredentials
// to avoid account enumeration.
func (s *UserService) AuthenticatePassword(ctx context.Context, email, password string) (*entity.User, error) {
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return nil, ErrBadCredentials
	}
	if !s.hasher.Verify(*u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if !u.IsActive {
		return nil, ErrDisabled
	}
	return u, nil
}

// RequestMagicLink finds or creates the account for the email and stores a
// fresh single-use verification token. Returns the token for delivery.
func (s *UserService) RequestMagicLink(ctx context.Context, email string, allowNewUsers bool, ttl time.Duration) (string, *entity.User, error) {
	email = normalizeEmail(email)
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return "", nil, err
		}
		if !allowNewUsers {
			return "", nil, ErrNewUsersBlocked
		}
		id, idErr := utilities.NewSnowflakeID()
		if idErr != nil {
			return "", nil, idErr
		}
		u = &entity.User{ID: id, Email: email, IsActive: true, IsVerified: false}
		if err := s.repo.Create(ctx, u); err != nil {
			return "", nil, err
		}
	}
	token, err := newOpaqueToken()
	if err != nil {
		return "", nil, err
	}
	expires := time.Now().Add(ttl)
	if err := s.repo.SetVerificationToken(ctx, u.ID, token, expires); err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// VerifyMagicLink consumes a pending magic-link token, marking the account
// verified and active. Unknown and expired tokens map to ErrTokenInvalid.
func (s *UserService) VerifyMagicLink(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}
	u, err := s.repo.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if u.VerificationExpires == nil || time.Now().After(*u.VerificationExpires) {
		return nil, ErrTokenInvalid
	}
	if err := s.repo.ConsumeVerificationToken(ctx, u.ID); err != nil {
		return nil, err
	}
	u.VerificationToken = nil
	u.VerificationExpires = nil
	u.IsVerified = true
	u.IsActive = true
	return u, nil
}

// UpsertGoogleUser resolves the account for a verified Google identity:
// match on provider id, then link by email, then create a verified account.
func (s *UserService) UpsertGoogleUser(ctx context.Context, googleID, email string, name, avatar *string) (*entity.User, error) {
	u, err := s.repo.GetByGoogleID(ctx, googleID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	u, err = s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		if err := s.repo.LinkGoogle(ctx, u.ID, googleID); err != nil {
			return nil, err
		}
		u.GoogleID = &googleID
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	id, err := utilities.NewSnowflakeID()
	if err != nil {
		return nil, err
	}
	u = &entity.User{
		ID:         id,
		Email:      normalizeEmail(email),
		FullName:   name,
		AvatarURL:  avatar,
		GoogleID:   &googleID,
		IsActive:   true,
		IsVerified: true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpsertAppleUser mirrors UpsertGoogleUser for Apple identities. Apple
// emails are pre-verified.
func (s *UserService) UpsertAppleUser(ctx context.Context, appleID, email string, name *string) (*entity.User, error) {
	u, err := s.repo.GetByAppleID(ctx, appleID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	u, err = s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err == nil {
		if err := s.repo.LinkApple(ctx, u.ID, appleID); err != nil {
			return nil, err
		}
		u.AppleID = &appleID
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	id, err := utilities.NewSnowflakeID()
	if err != nil {
		return nil, err
	}
	u = &entity.User{
		ID:         id,
		Email:      normalizeEmail(email),
		FullName:   name,
		AppleID:    &appleID,
		IsActive:   true,
		IsVerified: true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// newOpaqueToken returns a 32-byte url-safe random token.
func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
