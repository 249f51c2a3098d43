package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotLoggedIn is returned by calls that need a session when none is stored
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("passgate: %d %s", e.Status, e.Message)
}

// Profile is the body of GET /api/me
type Profile struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	HasPassword  bool   `json:"hasPassword"`
	GoogleLinked bool   `json:"googleLinked"`
}

// AuthClient talks to the passgate endpoints of one server
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	apiPrefix     string
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithAPIPrefix sets the path the API is mounted under, "/api" by default
func WithAPIPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.apiPrefix = prefix
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.Jar = client.Jar
	}
}

// WithTransport sets a custom base transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a client for serverURL. Only the scheme and host are kept.
func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     serverURL,
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
		apiPrefix:     "/api",
	}
	for _, opt := range opts {
		opt(c)
	}

	// Redirects from the OAuth routes are left to the caller
	c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	c.httpClient.Transport = &sessionTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns a client that sends the stored session token
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// GetToken returns the stored session token, or "" when absent or expired
func (c *AuthClient) GetToken() (string, error) {
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil || cred.IsExpired() {
		return "", err
	}
	return cred.SessionToken, nil
}

// IsLoggedIn returns true if there is a non-expired session
func (c *AuthClient) IsLoggedIn() bool {
	token, err := c.GetToken()
	return err == nil && token != ""
}

// Signup registers an account. An empty name lets the server derive one.
func (c *AuthClient) Signup(ctx context.Context, email, password, name string) error {
	body := map[string]string{"email": email, "password": password}
	if name != "" {
		body["name"] = name
	}
	return c.post(ctx, "/signup", body, nil)
}

// Login exchanges a password for a session token and stores it
func (c *AuthClient) Login(ctx context.Context, email, password string) (*ServerCredential, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/login", map[string]string{"email": email, "password": password}, &resp); err != nil {
		return nil, err
	}
	cred, err := CredentialFromToken(resp.Token)
	if err != nil {
		return nil, err
	}
	if err := c.SetSession(cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// SetSession stores a token obtained elsewhere, e.g. from the Google success redirect
func (c *AuthClient) SetSession(cred *ServerCredential) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// ForgotPassword asks for a reset link. The server answers the same for unknown emails.
func (c *AuthClient) ForgotPassword(ctx context.Context, email string) error {
	return c.post(ctx, "/forgot-password", map[string]string{"email": email}, nil)
}

// ResetPassword redeems a reset token
func (c *AuthClient) ResetPassword(ctx context.Context, token, password string) error {
	return c.post(ctx, "/reset-password", map[string]string{"token": token, "password": password}, nil)
}

// Me fetches the profile for the stored session
func (c *AuthClient) Me(ctx context.Context) (*Profile, error) {
	if !c.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+c.apiPrefix+"/me", nil)
	if err != nil {
		return nil, err
	}
	var profile Profile
	if err := c.do(req, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Logout forgets the session. Tokens are stateless so the server is not contacted.
func (c *AuthClient) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

func (c *AuthClient) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+c.apiPrefix+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *AuthClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.Unmarshal(body, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}

// CredentialFromToken reads the subject and expiry of a session token without
// checking its signature. Only the server can verify it.
func CredentialFromToken(token string) (*ServerCredential, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("malformed session token: %w", err)
	}
	sub, _ := claims.GetSubject()
	exp, _ := claims.GetExpirationTime()
	if sub == "" || exp == nil {
		return nil, fmt.Errorf("session token is missing sub or exp")
	}
	return &ServerCredential{
		SessionToken: token,
		Email:        sub,
		ExpiresAt:    exp.Time,
		CreatedAt:    time.Now(),
	}, nil
}

// sessionTransport adds the bearer token and drops the stored session once
// the profile endpoint rejects it. Other 401s, like a wrong password, keep it.
type sessionTransport struct {
	client *AuthClient
	base   http.RoundTripper
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.client.GetToken()
	if err != nil {
		// RoundTrippers must close the body even on error
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	if token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" && req.URL.Path == t.client.apiPrefix+"/me" {
		t.client.Logout()
	}
	return resp, nil
}
