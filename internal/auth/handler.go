package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/launchkit/service-core/internal/config"
	"github.com/launchkit/service-core/internal/mailer"
	"github.com/launchkit/service-core/internal/user"
)

// Handler exposes the authentication endpoints: password login and
// registration, magic links, Google/Apple sign-in, refresh and logout.
type Handler struct {
	cfg    *config.Config
	tokens *TokenService
	users  *user.UserService
	mail   mailer.Mailer
	google *GoogleVerifier
	apple  *AppleVerifier
	logger *zap.SugaredLogger
}

func NewHandler(cfg *config.Config, tokens *TokenService, users *user.UserService, mail mailer.Mailer, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		cfg:    cfg,
		tokens: tokens,
		users:  users,
		mail:   mail,
		google: NewGoogleVerifier(cfg.Providers.GoogleClientID),
		apple:  NewAppleVerifier(cfg.Providers.AppleClientID),
		logger: logger,
	}
}

// Config reports which providers are enabled so the frontend can render the
// matching sign-in options.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"providers": map[string]any{
			"email_password": map[string]any{
				"enabled":            h.cfg.IsProviderEnabled(config.ProviderEmailPassword),
				"allow_registration": h.cfg.Providers.AllowRegistration,
			},
			"google": map[string]any{
				"enabled":   h.cfg.IsProviderEnabled(config.ProviderGoogle),
				"client_id": googleClientIDOrNil(h.cfg),
			},
			"apple": map[string]any{
				"enabled": h.cfg.IsProviderEnabled(config.ProviderApple),
			},
			"magic_link": map[string]any{
				"enabled":         h.cfg.IsProviderEnabled(config.ProviderMagicLink),
				"allow_new_users": h.cfg.Providers.MagicLinkAllowNewUsers,
			},
		},
		"enabled_providers": h.cfg.EnabledProviders(),
	}
	h.writeJSON(w, http.StatusOK, out)
}

func googleClientIDOrNil(cfg *config.Config) any {
	if cfg.IsProviderEnabled(config.ProviderGoogle) {
		return cfg.Providers.GoogleClientID
	}
	return nil
}

type emailLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginEmail authenticates email/password credentials and returns a token
// bundle.
func (h *Handler) LoginEmail(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.IsProviderEnabled(config.ProviderEmailPassword) {
		h.writeError(w, http.StatusForbidden, "email/password authentication is disabled")
		return
	}
	var req emailLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	u, err := h.users.AuthenticatePassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Debugw("login failed", "err", err)
		switch {
		case errors.Is(err, user.ErrBadCredentials):
			h.writeError(w, http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, user.ErrDisabled):
			h.writeError(w, http.StatusUnauthorized, "account is disabled")
		default:
			h.writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	h.respondWithBundle(w, r, u.ID)
}

type emailRegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

// RegisterEmail creates a new password-backed account and returns its
// public profile.
func (h *Handler) RegisterEmail(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.IsProviderEnabled(config.ProviderEmailPassword) {
		h.writeError(w, http.StatusForbidden, "email/password authentication is disabled")
		return
	}
	if !h.cfg.Providers.AllowRegistration {
		h.writeError(w, http.StatusForbidden, "email registration is disabled")
		return
	}
	var req emailRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	u, err := h.users.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrEmailTaken):
			h.writeError(w, http.StatusBadRequest, "email already registered")
		case errors.Is(err, user.ErrBadCredentials):
			h.writeError(w, http.StatusBadRequest, "email and password are required")
		default:
			h.logger.Warnw("registration failed", "err", err)
			h.writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, u)
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

// RequestMagicLink issues a single-use sign-in token and mails it to the
// user as a link into the frontend.
func (h *Handler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.IsProviderEnabled(config.ProviderMagicLink) {
		h.writeError(w, http.StatusForbidden, "magic link authentication is disabled")
		return
	}
	var req magicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	token, u, err := h.users.RequestMagicLink(r.Context(), req.Email, h.cfg.Providers.MagicLinkAllowNewUsers, h.cfg.Providers.MagicLinkTTL)
	if err != nil {
		if errors.Is(err, user.ErrNewUsersBlocked) {
			h.writeError(w, http.StatusNotFound, "user not found and new user registration via magic link is disabled")
			return
		}
		h.logger.Warnw("magic link request failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "magic link request failed")
		return
	}

	link := fmt.Sprintf("%s/auth/verify?token=%s", h.cfg.FrontendURL, token)
	msg := mailer.Message{
		To:      u.Email,
		Subject: "Your sign-in link",
		Body:    fmt.Sprintf("Click the link below to sign in:\n\n%s\n\nThe link expires in %d minutes.", link, int(h.cfg.Providers.MagicLinkTTL.Minutes())),
	}
	if err := h.mail.Send(r.Context(), msg); err != nil {
		h.logger.Warnw("magic link delivery failed", "err", err, "email", u.Email)
		h.writeError(w, http.StatusInternalServerError, "failed to send magic link")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Magic link sent to email"})
}

type magicLinkVerifyRequest struct {
	Token string `json:"token"`
}

// VerifyMagicLink consumes a magic-link token and returns a token bundle.
func (h *Handler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.IsProviderEnabled(config.ProviderMagicLink) {
		h.writeError(w, http.StatusForbidden, "magic link authentication is disabled")
		return
	}
	var req magicLinkVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	u, err := h.users.VerifyMagicLink(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, user.ErrTokenInvalid) {
			h.writeError(w, http.StatusBadRequest, "invalid or expired token")
			return
		}
		h.logger.Warnw("magic link verify failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	h.respondWithBundle(w, r, u.ID)
}

type googleAuthRequest struct {
	Credential string `json:"credential"`
}

// Google verifies a Google ID token, finds or creates the matching account
// and returns a token bundle.
func (h *Handler) Google(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.IsProviderEnabled(config.ProviderGoogle) {
		h.writeError(w, http.StatusForbidden, "google authentication is disabled")
		return
	}
	var req googleAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Credential == "" {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	identity, err := h.google.Verify(r.Context(), req.Credential)
	if err != nil {
		h.logger.Debugw("google token rejected", "err", err)
		h.writeError(w, http.StatusBadRequest, "invalid google token")
		return
	}
	u, err := h.users.UpsertGoogleUser(r.Context(), identity.Subject, identity.Email, identity.Name, identity.AvatarURL)
	if err != nil {
		h.logger.Warnw("google upsert failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	h.respondWithBundle(w, r, u.ID)
}

type appleAuthRequest struct {
	Authorization struct {
		Code    string `json:"code"`
		IDToken string `json:"id_token"`
	} `json:"authorization"`
	User *struct {
		Name  *AppleUserName `json:"name"`
		Email string         `json:"email"`
	} `json:"user"`
}

// Apple verifies an Apple identity token, finds or creates the matching
// account and returns a token bundle.
func (h *Handler) Apple(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.IsProviderEnabled(config.ProviderApple) {
		h.writeError(w, http.StatusForbidden, "apple authentication is disabled")
		return
	}
	var req appleAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Authorization.IDToken == "" {
		h.writeError(w, http.StatusBadRequest, "missing identity token")
		return
	}
	var name *AppleUserName
	if req.User != nil {
		name = req.User.Name
	}
	identity, err := h.apple.Verify(r.Context(), req.Authorization.IDToken, name)
	if err != nil {
		h.logger.Debugw("apple token rejected", "err", err)
		h.writeError(w, http.StatusBadRequest, "apple authentication failed")
		return
	}
	u, err := h.users.UpsertAppleUser(r.Context(), identity.Subject, identity.Email, identity.Name)
	if err != nil {
		h.logger.Warnw("apple upsert failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	h.respondWithBundle(w, r, u.ID)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh credential into a fresh token bundle. The old
// credential is revoked whether or not a new bundle is issued.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	userID, err := h.tokens.Redeem(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	u, err := h.users.Get(r.Context(), userID)
	if err != nil || !u.IsActive {
		h.writeError(w, http.StatusUnauthorized, "user not found or inactive")
		return
	}
	h.respondWithBundle(w, r, u.ID)
}

// Logout revokes the presented refresh credential. Always succeeds so
// clients can clear local state unconditionally.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		if err := h.tokens.Revoke(r.Context(), req.RefreshToken); err != nil {
			h.logger.Debugw("logout revoke failed", "err", err)
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (h *Handler) respondWithBundle(w http.ResponseWriter, r *http.Request, userID int64) {
	bundle, err := h.tokens.IssueBundle(r.Context(), userID)
	if err != nil {
		h.logger.Errorw("token issuance failed", "err", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}
	h.writeJSON(w, http.StatusOK, bundle)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
