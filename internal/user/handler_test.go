package user

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/launchkit/service-core/internal/user/entity"
)

func TestMeReturnsContextUser(t *testing.T) {
	h := NewHandler(zap.NewNop().Sugar())
	secret := "hash"
	u := &entity.User{ID: 42, Email: "person@example.com", IsActive: true, PasswordHash: &secret}

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req = req.WithContext(WithUser(req.Context(), u))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "person@example.com", body["email"])
	// sensitive fields never serialize
	assert.NotContains(t, body, "password_hash")
	assert.NotContains(t, body, "verification_token")
}

func TestMeWithoutContextUser(t *testing.T) {
	h := NewHandler(zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileAliasesMe(t *testing.T) {
	h := NewHandler(zap.NewNop().Sugar())
	u := &entity.User{ID: 42, Email: "person@example.com"}

	req := httptest.NewRequest(http.MethodGet, "/api/users/profile", nil)
	req = req.WithContext(WithUser(req.Context(), u))
	rec := httptest.NewRecorder()
	h.Profile(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
