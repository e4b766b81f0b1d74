// Package apiclient provides an HTTP client for the template API that
// attaches bearer credentials to every request and transparently recovers
// from access-token expiry: concurrent 401 failures share a single refresh
// call, and each failed request is replayed at most once.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Credentials is the bundle issued by the auth endpoints. Access and
// refresh tokens are always stored and replaced together.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// APIError is returned by DoJSON for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: unexpected status %d", e.StatusCode)
}

// refreshAttempt is a one-shot future for an in-flight refresh. done is
// closed exactly once, after creds/err are set.
type refreshAttempt struct {
	done  chan struct{}
	creds *Credentials
	err   error
}

// Client issues authenticated requests against the template API. It owns
// the stored credential bundle exclusively: external code reads auth state
// through accessors and installs new bundles via SetCredentials, never by
// mutating shared state directly.
type Client struct {
	baseURL     string
	refreshPath string
	httpc       *http.Client
	store       CredentialStore
	logger      *zap.SugaredLogger

	mu        sync.Mutex
	creds     *Credentials
	refresh   *refreshAttempt
	logoutFns []func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRefreshPath overrides the token refresh route.
func WithRefreshPath(p string) Option {
	return func(c *Client) { c.refreshPath = p }
}

// New builds a Client and loads any persisted credentials from the store.
func New(baseURL string, store CredentialStore, opts ...Option) (*Client, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		refreshPath: "/api/auth/refresh",
		httpc:       &http.Client{Timeout: 30 * time.Second},
		store:       store,
		logger:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	creds, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("apiclient: load credentials: %w", err)
	}
	c.creds = creds
	return c, nil
}

// OnLogout registers an observer invoked once whenever the session
// terminates (refresh failure or a 401 with no usable refresh credential).
func (c *Client) OnLogout(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logoutFns = append(c.logoutFns, fn)
}

// Authenticated reports whether a credential bundle is stored.
func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds != nil && c.creds.AccessToken != ""
}

// Credentials returns a copy of the stored bundle, or nil.
func (c *Client) Credentials() *Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return nil
	}
	cp := *c.creds
	return &cp
}

// SetCredentials atomically replaces the stored bundle and persists it.
// Called after login flows that return a bundle out of band.
func (c *Client) SetCredentials(creds *Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if creds == nil {
		c.creds = nil
		return c.store.Clear()
	}
	cp := *creds
	c.creds = &cp
	return c.store.Save(&cp)
}

// ClearCredentials drops the stored bundle without firing logout observers.
func (c *Client) ClearCredentials() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = nil
	return c.store.Clear()
}

// Do issues a request with the stored access credential attached. On a 401
// for a request that has not yet been retried it coordinates a single
// refresh (shared with every other concurrently failing request) and
// replays the request exactly once. Terminal auth failures clear stored
// credentials, notify logout observers once, and return the original 401
// response. Non-401 responses pass through untouched.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	access := c.currentAccess()
	resp, err := c.send(ctx, method, path, body, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// Buffer the 401 so it can be returned verbatim if recovery fails.
	original, err := bufferResponse(resp)
	if err != nil {
		return nil, err
	}

	creds, err := c.refreshFor(ctx, access)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debugw("token refresh failed", "err", err)
		return original, nil
	}

	// Single retry with the fresh credential. A second 401 here is
	// terminal and returned to the caller as-is.
	return c.send(ctx, method, path, body, creds.AccessToken)
}

// DoJSON issues a request and decodes a 2xx JSON response into out.
// Non-2xx responses are returned as *APIError.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: data}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// refreshFor resolves a fresh credential bundle for a request that failed
// with usedAccess attached. At most one refresh call is in flight at any
// time; every concurrent caller observes the same outcome.
func (c *Client) refreshFor(ctx context.Context, usedAccess string) (*Credentials, error) {
	c.mu.Lock()

	// Someone already replaced the bundle since this request was sent.
	if c.creds != nil && c.creds.AccessToken != "" && c.creds.AccessToken != usedAccess {
		creds := *c.creds
		c.mu.Unlock()
		return &creds, nil
	}

	// A refresh is underway; wait for its outcome.
	if c.refresh != nil {
		att := c.refresh
		c.mu.Unlock()
		select {
		case <-att.done:
			return att.creds, att.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// No usable refresh credential: terminal, no network call.
	if c.creds == nil || c.creds.RefreshToken == "" {
		fns := c.terminateLocked()
		c.mu.Unlock()
		runAll(fns)
		return nil, fmt.Errorf("apiclient: no refresh credential stored")
	}

	// Become the refresh owner.
	att := &refreshAttempt{done: make(chan struct{})}
	c.refresh = att
	refreshToken := c.creds.RefreshToken
	c.mu.Unlock()

	creds, err := c.callRefresh(ctx, refreshToken)

	c.mu.Lock()
	c.refresh = nil
	if err != nil {
		fns := c.terminateLocked()
		att.err = err
		close(att.done)
		c.mu.Unlock()
		runAll(fns)
		return nil, err
	}
	c.creds = creds
	if serr := c.store.Save(creds); serr != nil {
		c.logger.Warnw("persisting refreshed credentials failed", "err", serr)
	}
	att.creds = creds
	close(att.done)
	c.mu.Unlock()
	return creds, nil
}

// terminateLocked clears stored credentials and returns the logout
// observers to notify, or nil when there was nothing stored (so repeated
// anonymous 401s do not re-broadcast logout).
func (c *Client) terminateLocked() []func() {
	if c.creds == nil {
		return nil
	}
	c.creds = nil
	if err := c.store.Clear(); err != nil {
		c.logger.Warnw("clearing credential store failed", "err", err)
	}
	fns := make([]func(), len(c.logoutFns))
	copy(fns, c.logoutFns)
	return fns
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// callRefresh exchanges the refresh credential for a new bundle.
func (c *Client) callRefresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.refreshPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: refresh call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apiclient: refresh rejected with status %d", resp.StatusCode)
	}
	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("apiclient: decode refresh response: %w", err)
	}
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("apiclient: refresh response missing access token")
	}
	return &creds, nil
}

func (c *Client) currentAccess() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return ""
	}
	return c.creds.AccessToken
}

// send builds and issues a single HTTP request with the given access token.
// The body is marshaled fresh on every call so replays are safe.
func (c *Client) send(ctx context.Context, method, path string, body any, access string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	return c.httpc.Do(req)
}

// bufferResponse reads a response fully so its body can be re-read after
// the connection is released.
func bufferResponse(resp *http.Response) (*http.Response, error) {
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}
