package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jwksServer serves a JWKS document for the given key and counts fetches.
func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey, fetches *atomic.Int32) *httptest.Server {
	t.Helper()
	doc := jwksDocument{Keys: []jwkKey{{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches != nil {
			fetches.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tkn := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tkn.Header["kid"] = kid
	signed, err := tkn.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWKSCacheFetchesAndCaches(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var fetches atomic.Int32
	srv := jwksServer(t, "kid-1", &key.PublicKey, &fetches)
	defer srv.Close()

	cache := NewJWKSCache(srv.URL)

	got, err := cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.N.Cmp(key.PublicKey.N))
	assert.Equal(t, key.PublicKey.E, got.E)

	// second lookup is served from cache
	_, err = cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetches.Load())

	// unknown kid on a fresh cache does not refetch within the TTL
	_, err = cache.Key(context.Background(), "kid-2")
	assert.Error(t, err)
	assert.Equal(t, int32(1), fetches.Load())

	// expiring the cache forces a refetch
	cache.fetchedAt = time.Now().Add(-2 * cache.TTL)
	_, err = cache.Key(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestGoogleVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := jwksServer(t, "g-key", &key.PublicKey, nil)
	defer srv.Close()

	verifier := &GoogleVerifier{ClientID: "client-123", Keys: NewJWKSCache(srv.URL)}

	base := jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            "client-123",
		"sub":            "google-sub-1",
		"email":          "person@example.com",
		"email_verified": true,
		"name":           "Test Person",
		"picture":        "https://example.com/p.png",
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}

	t.Run("valid token", func(t *testing.T) {
		id, err := verifier.Verify(context.Background(), signIDToken(t, key, "g-key", base))
		require.NoError(t, err)
		assert.Equal(t, "google", id.Provider)
		assert.Equal(t, "google-sub-1", id.Subject)
		assert.Equal(t, "person@example.com", id.Email)
		require.NotNil(t, id.Name)
		assert.Equal(t, "Test Person", *id.Name)
		require.NotNil(t, id.AvatarURL)
	})

	t.Run("short issuer form accepted", func(t *testing.T) {
		claims := cloneClaims(base)
		claims["iss"] = "accounts.google.com"
		_, err := verifier.Verify(context.Background(), signIDToken(t, key, "g-key", claims))
		assert.NoError(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := cloneClaims(base)
		claims["aud"] = "someone-else"
		_, err := verifier.Verify(context.Background(), signIDToken(t, key, "g-key", claims))
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := cloneClaims(base)
		claims["iss"] = "https://evil.example.com"
		_, err := verifier.Verify(context.Background(), signIDToken(t, key, "g-key", claims))
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		claims := cloneClaims(base)
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
		_, err := verifier.Verify(context.Background(), signIDToken(t, key, "g-key", claims))
		assert.Error(t, err)
	})

	t.Run("unknown kid", func(t *testing.T) {
		_, err := verifier.Verify(context.Background(), signIDToken(t, key, "other-key", base))
		assert.Error(t, err)
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		tkn := jwt.NewWithClaims(jwt.SigningMethodNone, base)
		tkn.Header["kid"] = "g-key"
		unsigned, err := tkn.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = verifier.Verify(context.Background(), unsigned)
		assert.Error(t, err)
	})
}

func TestAppleVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	srv := jwksServer(t, "a-key", &key.PublicKey, nil)
	defer srv.Close()

	verifier := &AppleVerifier{ClientID: "com.example.app", Keys: NewJWKSCache(srv.URL)}

	base := jwt.MapClaims{
		"iss":   "https://appleid.apple.com",
		"aud":   "com.example.app",
		"sub":   "apple-sub-1",
		"email": "person@privaterelay.appleid.com",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}

	t.Run("valid token with first sign-in name", func(t *testing.T) {
		name := &AppleUserName{FirstName: "Test", LastName: "Person"}
		id, err := verifier.Verify(context.Background(), signIDToken(t, key, "a-key", base), name)
		require.NoError(t, err)
		assert.Equal(t, "apple", id.Provider)
		assert.Equal(t, "apple-sub-1", id.Subject)
		require.NotNil(t, id.Name)
		assert.Equal(t, "Test Person", *id.Name)
	})

	t.Run("valid token without name payload", func(t *testing.T) {
		id, err := verifier.Verify(context.Background(), signIDToken(t, key, "a-key", base), nil)
		require.NoError(t, err)
		assert.Nil(t, id.Name)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := cloneClaims(base)
		claims["iss"] = "https://accounts.google.com"
		_, err := verifier.Verify(context.Background(), signIDToken(t, key, "a-key", claims), nil)
		assert.Error(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := cloneClaims(base)
		claims["aud"] = "com.other.app"
		_, err := verifier.Verify(context.Background(), signIDToken(t, key, "a-key", claims), nil)
		assert.Error(t, err)
	})
}

func cloneClaims(src jwt.MapClaims) jwt.MapClaims {
	dst := jwt.MapClaims{}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
