package passgate

import (
	"context"
	"net/http"
	"strings"

	"github.com/panyam/passgate/internal/logging"
)

type userParamNameKey string

// Middleware resolves the logged in email from a bearer token or the session
type Middleware struct {
	AuthTokenHeaderName string
	UserParamName       string
	SessionGetter       func(r *http.Request, param string) string
	VerifyToken         func(tokenString string) (email string, err error)
}

// EnsureReasonableDefaults fills in unset names
func (a *Middleware) EnsureReasonableDefaults() {
	if a.UserParamName == "" {
		a.UserParamName = SessionKeyEmail
	}
	if a.AuthTokenHeaderName == "" {
		a.AuthTokenHeaderName = "Authorization"
	}
}

// GetLoggedInEmail returns the email resolved for this request, or ""
func (a *Middleware) GetLoggedInEmail(r *http.Request) string {
	a.EnsureReasonableDefaults()
	if v, ok := r.Context().Value(userParamNameKey(a.UserParamName)).(string); ok && v != "" {
		return v
	}
	return a.resolveEmail(r)
}

// ExtractUser makes the email available downstream without requiring one
func (a *Middleware) ExtractUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, a.setLoggedInEmail(a.resolveEmail(r), r))
	})
}

// EnsureUser answers 401 when no valid token or session is present
func (a *Middleware) EnsureUser(next http.Handler) http.Handler {
	a.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := a.resolveEmail(r)
		if email == "" {
			writeError(w, NewAuthError(http.StatusUnauthorized, ErrCodeUnauthorized, MsgUnauthorized, ""))
			return
		}
		next.ServeHTTP(w, a.setLoggedInEmail(email, r))
	})
}

// resolveEmail checks the Authorization header first, then the session
func (a *Middleware) resolveEmail(r *http.Request) string {
	if a.VerifyToken != nil {
		for _, header := range r.Header.Values(a.AuthTokenHeaderName) {
			token := strings.TrimSpace(header)
			if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				continue
			}
			email, err := a.VerifyToken(token)
			if err == nil && email != "" {
				return email
			}
			logging.FromContext(r.Context()).Debug("rejected session token", "err", err)
		}
	}

	if a.SessionGetter != nil {
		return a.SessionGetter(r, a.UserParamName)
	}
	return ""
}

// setLoggedInEmail stores the email as a request scoped variable
func (a *Middleware) setLoggedInEmail(email string, r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), userParamNameKey(a.UserParamName), email)
	return r.WithContext(ctx)
}
