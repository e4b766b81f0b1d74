package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/launchkit/service-core/internal/user"
)

// RequireUser returns middleware that authenticates the request via its
// bearer token and loads the account into the request context. Inactive
// accounts are rejected the same as invalid tokens.
func RequireUser(tokens *TokenService, users *user.UserService, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing authentication token")
				return
			}
			userID, err := tokens.VerifyAccess(token)
			if err != nil {
				logger.Debugw("access token rejected", "err", err)
				unauthorized(w, "could not validate credentials")
				return
			}
			u, err := users.Get(r.Context(), userID)
			if err != nil || !u.IsActive {
				unauthorized(w, "could not validate credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(user.WithUser(r.Context(), u)))
		})
	}
}

// bearerToken extracts the token from an Authorization header,
// case-insensitively on the scheme.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[len("bearer "):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
