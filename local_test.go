package passgate_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	pg "github.com/panyam/passgate"
)

func TestSignupFlow(t *testing.T) {
	g := setupGate(t, nil)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
		field          string
		message        string
	}{
		{"successful signup", creds("test@example.com", "password123"), http.StatusCreated, "message", "User created successfully"},
		{"duplicate email", creds("test@example.com", "other"), http.StatusConflict, "error", "User already exists"},
		{"missing password", map[string]string{"email": "x@example.com"}, http.StatusBadRequest, "error", "Email and password are required"},
		{"missing email", map[string]string{"password": "p"}, http.StatusBadRequest, "error", "Email and password are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := g.post(t, "/api/signup", tt.body)
			body := expectResponse(t, rr, tt.expectedStatus, tt.field, tt.message)
			if len(body) != 1 {
				t.Errorf("expected a single field in body, got %v", body)
			}
		})
	}

	users := g.users(t)
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	u := users[0]
	if u.Name != "test" {
		t.Errorf("expected default name 'test', got %q", u.Name)
	}
	if u.PasswordHash == "" || u.PasswordHash == "password123" {
		t.Fatalf("password was not hashed")
	}
	cost, err := bcrypt.Cost([]byte(u.PasswordHash))
	if err != nil || cost != pg.PasswordCost {
		t.Errorf("expected bcrypt cost %d, got %d (%v)", pg.PasswordCost, cost, err)
	}
}

func TestSignupWithNameAndForm(t *testing.T) {
	g := setupGate(t, nil)

	rr := g.post(t, "/api/signup", map[string]string{"email": "a@example.com", "password": "pw", "name": "Alice"})
	expectResponse(t, rr, http.StatusCreated, "message", "User created successfully")

	form := url.Values{"email": {"b@example.com"}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, req)
	expectResponse(t, rr, http.StatusCreated, "message", "User created successfully")

	users := g.users(t)
	if users.Find("a@example.com").Name != "Alice" {
		t.Errorf("expected supplied name to be kept")
	}
	if users.Find("b@example.com") == nil {
		t.Errorf("expected form signup to be stored")
	}
}

func TestSignupMalformedBody(t *testing.T) {
	g := setupGate(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	g.Handler().ServeHTTP(rr, req)
	expectResponse(t, rr, http.StatusBadRequest, "error", "Email and password are required")
}

func TestConcurrentDuplicateSignup(t *testing.T) {
	g := setupGate(t, nil)

	const n = 8
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- g.post(t, "/api/signup", creds("race@example.com", "pw")).Code
		}()
	}
	wg.Wait()
	close(codes)

	created, conflicts := 0, 0
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if created != 1 || conflicts != n-1 {
		t.Errorf("expected 1 created and %d conflicts, got %d and %d", n-1, created, conflicts)
	}
	if len(g.users(t)) != 1 {
		t.Errorf("expected a single stored record")
	}
}

func TestLoginFlow(t *testing.T) {
	g := setupGate(t, nil)
	g.post(t, "/api/signup", creds("test@example.com", "password123"))

	t.Run("successful login", func(t *testing.T) {
		rr := g.post(t, "/api/login", creds("test@example.com", "password123"))
		body := expectResponse(t, rr, http.StatusOK, "message", "Login successful")
		token, _ := body["token"].(string)
		email, err := g.Sessions.Verify(token)
		if err != nil {
			t.Fatalf("issued token does not verify: %v", err)
		}
		if email != "test@example.com" {
			t.Errorf("expected subject test@example.com, got %q", email)
		}
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		wrong := g.post(t, "/api/login", creds("test@example.com", "nope"))
		unknown := g.post(t, "/api/login", creds("ghost@example.com", "password123"))
		expectResponse(t, wrong, http.StatusUnauthorized, "error", "Invalid email or password")
		if wrong.Code != unknown.Code || wrong.Body.String() != unknown.Body.String() {
			t.Errorf("responses differ: %q vs %q", wrong.Body.String(), unknown.Body.String())
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		rr := g.post(t, "/api/login", map[string]string{"email": "test@example.com"})
		expectResponse(t, rr, http.StatusBadRequest, "error", "Email and password are required")
	})
}

func TestLoginRejectsOAuthOnlyAccount(t *testing.T) {
	g := setupGate(t, nil)
	if err := g.Store.Save(t.Context(), pg.Users{{Email: "g@example.com", GoogleID: "123"}}); err != nil {
		t.Fatal(err)
	}
	rr := g.post(t, "/api/login", creds("g@example.com", ""))
	expectResponse(t, rr, http.StatusBadRequest, "error", "Email and password are required")
	rr = g.post(t, "/api/login", creds("g@example.com", "anything"))
	expectResponse(t, rr, http.StatusUnauthorized, "error", "Invalid email or password")
}

func TestPasswordResetFlow(t *testing.T) {
	g := setupGate(t, nil)
	g.post(t, "/api/signup", creds("test@example.com", "oldpass"))

	rr := g.post(t, "/api/forgot-password", map[string]string{"email": "test@example.com"})
	expectResponse(t, rr, http.StatusOK, "message", "Reset email sent")

	token := g.Mail.lastToken(t, "test@example.com")
	if len(token) != 64 {
		t.Fatalf("expected a 64 char hex token, got %q", token)
	}
	stored := g.users(t).Find("test@example.com")
	if stored.ResetToken != token || stored.ResetTokenExpiry == nil {
		t.Fatalf("expected token and expiry to be stored together")
	}
	if d := time.Until(*stored.ResetTokenExpiry); d < 59*time.Minute || d > time.Hour {
		t.Errorf("expected expiry about an hour out, got %v", d)
	}

	rr = g.post(t, "/api/reset-password", map[string]string{"token": token, "password": "newpass"})
	expectResponse(t, rr, http.StatusOK, "message", "Password reset successful")

	stored = g.users(t).Find("test@example.com")
	if stored.ResetToken != "" || stored.ResetTokenExpiry != nil {
		t.Errorf("expected token to be cleared")
	}

	expectResponse(t, g.post(t, "/api/login", creds("test@example.com", "newpass")), http.StatusOK, "message", "Login successful")
	expectResponse(t, g.post(t, "/api/login", creds("test@example.com", "oldpass")), http.StatusUnauthorized, "error", "Invalid email or password")

	t.Run("token is single use", func(t *testing.T) {
		rr := g.post(t, "/api/reset-password", map[string]string{"token": token, "password": "again"})
		expectResponse(t, rr, http.StatusBadRequest, "error", "Invalid or expired token")
	})

	t.Run("missing fields", func(t *testing.T) {
		rr := g.post(t, "/api/reset-password", map[string]string{"token": token})
		expectResponse(t, rr, http.StatusBadRequest, "error", "Token and password are required")
		rr = g.post(t, "/api/forgot-password", map[string]string{})
		expectResponse(t, rr, http.StatusBadRequest, "error", "Email is required")
	})
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	g := setupGate(t, nil)
	g.post(t, "/api/signup", creds("test@example.com", "pw"))

	before, err := os.ReadFile(g.Store.Path)
	if err != nil {
		t.Fatal(err)
	}
	known := g.post(t, "/api/forgot-password", map[string]string{"email": "test@example.com"})
	afterKnown, _ := os.ReadFile(g.Store.Path)
	unknown := g.post(t, "/api/forgot-password", map[string]string{"email": "ghost@example.com"})
	afterUnknown, _ := os.ReadFile(g.Store.Path)

	if known.Code != unknown.Code || known.Body.String() != unknown.Body.String() {
		t.Errorf("responses differ: %q vs %q", known.Body.String(), unknown.Body.String())
	}
	if bytes.Equal(before, afterKnown) {
		t.Errorf("expected the known email to get a token")
	}
	if !bytes.Equal(afterKnown, afterUnknown) {
		t.Errorf("unknown email must not modify the store")
	}
	if g.Mail.calls != 1 {
		t.Errorf("expected exactly one email, got %d", g.Mail.calls)
	}
}

func TestForgotPasswordReplacesPendingToken(t *testing.T) {
	g := setupGate(t, nil)
	g.post(t, "/api/signup", creds("test@example.com", "pw"))

	g.post(t, "/api/forgot-password", map[string]string{"email": "test@example.com"})
	first := g.Mail.lastToken(t, "test@example.com")
	g.post(t, "/api/forgot-password", map[string]string{"email": "test@example.com"})
	second := g.Mail.lastToken(t, "test@example.com")
	if first == second {
		t.Fatal("expected a fresh token")
	}

	rr := g.post(t, "/api/reset-password", map[string]string{"token": first, "password": "x"})
	expectResponse(t, rr, http.StatusBadRequest, "error", "Invalid or expired token")
	rr = g.post(t, "/api/reset-password", map[string]string{"token": second, "password": "x"})
	expectResponse(t, rr, http.StatusOK, "message", "Password reset successful")
}

func TestExpiredResetToken(t *testing.T) {
	g := setupGate(t, nil)
	g.post(t, "/api/signup", creds("test@example.com", "pw"))
	g.post(t, "/api/forgot-password", map[string]string{"email": "test@example.com"})
	token := g.Mail.lastToken(t, "test@example.com")

	g.Local.Now = func() time.Time { return time.Now().Add(pg.TokenExpiryPasswordReset + time.Minute) }

	expired := g.post(t, "/api/reset-password", map[string]string{"token": token, "password": "x"})
	unknown := g.post(t, "/api/reset-password", map[string]string{"token": strings.Repeat("0", 64), "password": "x"})
	expectResponse(t, expired, http.StatusBadRequest, "error", "Invalid or expired token")
	if expired.Body.String() != unknown.Body.String() {
		t.Errorf("expired and unknown tokens must look the same")
	}

	// The password is untouched
	g.Local.Now = nil
	expectResponse(t, g.post(t, "/api/login", creds("test@example.com", "pw")), http.StatusOK, "message", "Login successful")
}

func TestServerErrors(t *testing.T) {
	g := setupGate(t, func(o *pg.Options) { o.Store = brokenStore{} })

	for _, path := range []string{"/api/signup", "/api/login", "/api/forgot-password", "/api/reset-password"} {
		t.Run(path, func(t *testing.T) {
			rr := g.post(t, path, map[string]string{"email": "a@example.com", "password": "pw", "token": "tok"})
			body := expectResponse(t, rr, http.StatusInternalServerError, "error", "Server error")
			if len(body) != 1 {
				t.Errorf("server errors must not leak details: %v", body)
			}
		})
	}
}
