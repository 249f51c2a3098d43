package passgate_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"

	pg "github.com/panyam/passgate"
	"github.com/panyam/passgate/stores"
)

const testSecret = "test-secret-do-not-use"

// captureSender records reset links instead of sending them
type captureSender struct {
	mu    sync.Mutex
	sent  map[string][]string
	calls int
}

func (c *captureSender) SendPasswordResetEmail(to string, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == nil {
		c.sent = map[string][]string{}
	}
	c.sent[to] = append(c.sent[to], link)
	c.calls++
	return nil
}

// lastToken returns the token from the most recent link sent to email
func (c *captureSender) lastToken(t *testing.T, email string) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	links := c.sent[email]
	if len(links) == 0 {
		t.Fatalf("no reset email sent to %s", email)
	}
	u, err := url.Parse(links[len(links)-1])
	if err != nil {
		t.Fatalf("bad reset link: %v", err)
	}
	return u.Query().Get("token")
}

// brokenStore fails every call
type brokenStore struct{}

var errBroken = errors.New("disk on fire")

func (brokenStore) Load(ctx context.Context) (pg.Users, error) { return nil, errBroken }
func (brokenStore) Save(ctx context.Context, users pg.Users) error { return errBroken }
func (brokenStore) Update(ctx context.Context, fn func(pg.Users) (pg.Users, error)) error {
	return errBroken
}

type testGate struct {
	*pg.PassGate
	Store    *stores.FSCredentialStore
	Sessions *pg.SessionIssuer
	Mail     *captureSender
	handler  http.Handler
}

// setupGate builds a gate over a file store in a temp dir
func setupGate(t *testing.T, mutate func(*pg.Options)) *testGate {
	t.Helper()
	store := stores.NewFSCredentialStore(filepath.Join(t.TempDir(), "users.json"))
	sessions, err := pg.NewSessionIssuer(testSecret, "", 0)
	if err != nil {
		t.Fatalf("NewSessionIssuer: %v", err)
	}
	mail := &captureSender{}
	opts := pg.Options{
		Store:        store,
		Sessions:     sessions,
		EmailSender:  mail,
		ResetBaseURL: "http://localhost:3000",
	}
	if mutate != nil {
		mutate(&opts)
	}
	gate := pg.New(opts)
	return &testGate{PassGate: gate, Store: store, Sessions: sessions, Mail: mail, handler: gate.Handler()}
}

func (g *testGate) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	g.handler.ServeHTTP(rr, req)
	return rr
}

func (g *testGate) get(t *testing.T, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	g.handler.ServeHTTP(rr, req)
	return rr
}

func (g *testGate) users(t *testing.T) pg.Users {
	t.Helper()
	users, err := g.Store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return users
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rr.Body.String(), err)
	}
	return body
}

// expectResponse checks the status and one string field of the JSON body
func expectResponse(t *testing.T, rr *httptest.ResponseRecorder, status int, field, want string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if got, _ := body[field].(string); got != want {
		t.Fatalf("expected %s=%q, got %q", field, want, got)
	}
	return body
}

func creds(email, password string) map[string]string {
	return map[string]string{"email": email, "password": password}
}
