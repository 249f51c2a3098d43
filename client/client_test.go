package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pg "github.com/panyam/passgate"
	"github.com/panyam/passgate/client"
	clientfs "github.com/panyam/passgate/client/stores/fs"
	"github.com/panyam/passgate/stores"
)

type linkRecorder struct{ links []string }

func (l *linkRecorder) SendPasswordResetEmail(to, link string) error {
	l.links = append(l.links, link)
	return nil
}

func startServer(t *testing.T) (*httptest.Server, *linkRecorder) {
	t.Helper()
	sessions, err := pg.NewSessionIssuer("client-test-secret", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	mail := &linkRecorder{}
	gate := pg.New(pg.Options{
		Store:       stores.NewFSCredentialStore(filepath.Join(t.TempDir(), "users.json")),
		Sessions:    sessions,
		EmailSender: mail,
	})
	server := httptest.NewServer(gate.Handler())
	t.Cleanup(server.Close)
	return server, mail
}

func newClient(t *testing.T, serverURL string) (*client.AuthClient, *clientfs.FSCredentialStore) {
	t.Helper()
	store, err := clientfs.NewFSCredentialStore(filepath.Join(t.TempDir(), "sessions.json"), "")
	if err != nil {
		t.Fatal(err)
	}
	return client.NewAuthClient(serverURL+"/ignored/path", store), store
}

func TestClientAccountLifecycle(t *testing.T) {
	server, mail := startServer(t)
	c, store := newClient(t, server.URL)
	ctx := context.Background()

	if c.ServerURL() != server.URL {
		t.Errorf("expected path to be dropped, got %s", c.ServerURL())
	}

	if err := c.Signup(ctx, "alice@example.com", "pw", "Alice"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	var apiErr *client.APIError
	err := c.Signup(ctx, "alice@example.com", "pw", "")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || apiErr.Message != "User already exists" {
		t.Fatalf("expected 409 User already exists, got %v", err)
	}

	if _, err := c.Me(ctx); !errors.Is(err, client.ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn, got %v", err)
	}

	cred, err := c.Login(ctx, "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if cred.Email != "alice@example.com" {
		t.Errorf("Email = %q", cred.Email)
	}
	if d := time.Until(cred.ExpiresAt); d <= 0 || d > time.Hour {
		t.Errorf("unexpected expiry %v", cred.ExpiresAt)
	}
	if !c.IsLoggedIn() {
		t.Error("expected client to be logged in")
	}

	// Persisted with owner-only permissions
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %v", info.Mode().Perm())
	}
	reopened, err := clientfs.NewFSCredentialStore(store.Path(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := reopened.GetCredential(server.URL); got == nil || got.SessionToken != cred.SessionToken {
		t.Error("expected session to survive reopening the store")
	}

	profile, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if profile.Email != "alice@example.com" || profile.Name != "Alice" || !profile.HasPassword || profile.GoogleLinked {
		t.Errorf("unexpected profile %+v", profile)
	}

	// A wrong password keeps the existing session
	if _, err := c.Login(ctx, "alice@example.com", "wrong"); !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
	if !c.IsLoggedIn() {
		t.Error("failed login must not drop the session")
	}

	if err := c.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword() error = %v", err)
	}
	if len(mail.links) != 1 {
		t.Fatalf("expected one reset link, got %d", len(mail.links))
	}
	link, _ := url.Parse(mail.links[0])
	if err := c.ResetPassword(ctx, link.Query().Get("token"), "newpw"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	err = c.ResetPassword(ctx, link.Query().Get("token"), "again")
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid or expired token" {
		t.Errorf("expected reused token to fail, got %v", err)
	}

	if err := c.Logout(); err != nil {
		t.Fatal(err)
	}
	if c.IsLoggedIn() {
		t.Error("expected logout to clear the session")
	}
	if _, err := c.Login(ctx, "alice@example.com", "newpw"); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
}

func TestClientDropsRejectedSession(t *testing.T) {
	server, _ := startServer(t)
	c, _ := newClient(t, server.URL)

	// Signed with another secret, so the server rejects it
	other, _ := pg.NewSessionIssuer("some-other-secret", "", 0)
	token, _ := other.Issue("mallory@example.com")
	cred, err := client.CredentialFromToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetSession(cred); err != nil {
		t.Fatal(err)
	}

	_, err = c.Me(context.Background())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if c.IsLoggedIn() {
		t.Error("rejected session should be dropped")
	}
}

// brokenCredentials fails every lookup
type brokenCredentials struct{}

var errKeychain = errors.New("keychain locked")

func (brokenCredentials) GetCredential(string) (*client.ServerCredential, error) {
	return nil, errKeychain
}
func (brokenCredentials) SetCredential(string, *client.ServerCredential) error { return errKeychain }
func (brokenCredentials) RemoveCredential(string) error                        { return errKeychain }
func (brokenCredentials) Save() error                                          { return errKeychain }

type trackedBody struct {
	*strings.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

func TestTransportClosesBodyWhenTokenLookupFails(t *testing.T) {
	c := client.NewAuthClient("http://passgate.test", brokenCredentials{})

	body := &trackedBody{Reader: strings.NewReader(`{"email":"a@example.com"}`)}
	req, err := http.NewRequest(http.MethodPost, "http://passgate.test/api/signup", body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.HTTPClient().Do(req)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected the credential error")
	}
	if !errors.Is(err, errKeychain) {
		t.Errorf("expected the store error to surface, got %v", err)
	}
	if !body.closed {
		t.Error("request body was left open")
	}
}

func TestCredentialFromToken(t *testing.T) {
	if _, err := client.CredentialFromToken("garbage"); err == nil {
		t.Error("expected malformed token to fail")
	}
	expired := &client.ServerCredential{ExpiresAt: time.Now().Add(-time.Second)}
	if !expired.IsExpired() {
		t.Error("expected credential to be expired")
	}
}

func TestFSCredentialStoreKeys(t *testing.T) {
	store, err := clientfs.NewFSCredentialStore(filepath.Join(t.TempDir(), "s.json"), "")
	if err != nil {
		t.Fatal(err)
	}
	cred := &client.ServerCredential{SessionToken: "t"}
	if err := store.SetCredential("http://localhost:5000/api/login", cred); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetCredential("http://localhost:5000")
	if got != cred {
		t.Error("expected paths to map to the same server")
	}
	if got, _ := store.GetCredential("https://localhost:5000"); got != nil {
		t.Error("schemes must be distinct")
	}
	if err := store.SetCredential("not a url", cred); err == nil {
		t.Error("expected an error for a URL without host")
	}
}
