package passgate

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/panyam/passgate/internal/logging"
)

// SessionKeyEmail is the scs session key holding the logged in email
const SessionKeyEmail = "loggedInEmail"

// LocalAuth serves the email/password endpoints
type LocalAuth struct {
	Store    CredentialStore
	Hasher   Hasher
	Tokens   *ResetTokens
	Sessions *SessionIssuer

	// Optional email sender for reset links. Defaults to ConsoleEmailSender.
	EmailSender SendEmail

	// Base URL of the page that consumes reset tokens, e.g. http://localhost:3000
	ResetBaseURL string

	// Optional server-side session that mirrors the logged in email
	Session *scs.SessionManager

	// Overridable for tests
	Now func() time.Time
}

func (a *LocalAuth) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *LocalAuth) emailSender() SendEmail {
	if a.EmailSender != nil {
		return a.EmailSender
	}
	return &ConsoleEmailSender{}
}

// HandleLogin checks the password and returns a session token.
// Unknown emails, wrong passwords and OAuth-only accounts all get the same 401.
func (a *LocalAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	creds, err := parseCredentials(w, r)
	if err != nil {
		logger.Debug("unreadable login body", "err", err)
	}
	if creds.Email == "" || creds.Password == "" {
		writeError(w, NewAuthError(http.StatusBadRequest, ErrCodeMissingField, MsgEmailAndPasswordRequired, "email"))
		return
	}

	users, err := a.Store.Load(r.Context())
	if err != nil {
		logger.Error("error loading users", "err", err)
		writeServerError(w)
		return
	}

	user := users.Find(creds.Email)
	if user == nil || !a.Hasher.Verify(creds.Password, user.PasswordHash) {
		writeError(w, NewAuthError(http.StatusUnauthorized, ErrCodeInvalidCreds, MsgInvalidLogin, "password"))
		return
	}

	token, err := a.Sessions.Issue(user.Email)
	if err != nil {
		logger.Error("error issuing session token", "err", err)
		writeServerError(w)
		return
	}
	if a.Session != nil {
		a.Session.Put(r.Context(), SessionKeyEmail, user.Email)
	}

	logger.Info("login succeeded", "email", user.Email)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"token":   token,
	})
}

// HandleForgotPassword always answers 200 once an email is supplied. A token is
// stored and sent only when the account exists.
func (a *LocalAuth) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	creds, err := parseCredentials(w, r)
	if err != nil {
		logger.Debug("unreadable forgot-password body", "err", err)
	}
	if creds.Email == "" {
		writeError(w, NewAuthError(http.StatusBadRequest, ErrCodeMissingField, MsgEmailRequired, "email"))
		return
	}

	var token string
	err = a.Store.Update(r.Context(), func(users Users) (Users, error) {
		user := users.Find(creds.Email)
		if user == nil {
			return users, ErrNoChange
		}
		t, err := a.Tokens.Issue(user, a.now())
		if err != nil {
			return users, err
		}
		token = t
		return users, nil
	})
	if err != nil {
		logger.Error("error issuing reset token", "err", err)
		writeServerError(w)
		return
	}

	if token != "" {
		logger.Info("reset token issued", "email", creds.Email)
		if err := a.emailSender().SendPasswordResetEmail(creds.Email, a.resetLink(token)); err != nil {
			logger.Warn("error sending reset email", "err", err)
		}
	} else {
		logger.Info("reset requested for unknown email")
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Reset email sent"})
}

// HandleResetPassword redeems a reset token. The token is single use.
func (a *LocalAuth) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	creds, err := parseCredentials(w, r)
	if err != nil {
		logger.Debug("unreadable reset-password body", "err", err)
	}
	if creds.Token == "" || creds.Password == "" {
		writeError(w, NewAuthError(http.StatusBadRequest, ErrCodeMissingField, MsgTokenAndPasswordRequired, "token"))
		return
	}

	var email string
	err = a.Store.Update(r.Context(), func(users Users) (Users, error) {
		user, err := a.Tokens.Redeem(users, creds.Token, creds.Password, a.now())
		if err != nil {
			return users, err
		}
		email = user.Email
		return users, nil
	})
	if errors.Is(err, ErrInvalidResetToken) {
		writeError(w, NewAuthError(http.StatusBadRequest, ErrCodeInvalidToken, MsgInvalidResetToken, "token"))
		return
	}
	if err != nil {
		logger.Error("error resetting password", "err", err)
		writeServerError(w)
		return
	}

	logger.Info("password reset", "email", email)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password reset successful"})
}

func (a *LocalAuth) resetLink(token string) string {
	base := strings.TrimSuffix(a.ResetBaseURL, "/")
	return fmt.Sprintf("%s/reset-password?token=%s", base, url.QueryEscape(token))
}
