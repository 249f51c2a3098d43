package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// stateSessionKey is where the expected state is kept when verification is on
const stateSessionKey = "oauthstate"

// UserInfo is the subset of the provider profile we use
type UserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// HandleUserFunc reconciles a verified profile with local records and returns
// a session token for it.
type HandleUserFunc func(ctx context.Context, provider string, token *oauth2.Token, info *UserInfo) (sessionToken string, err error)

// StateStore keeps the generated state between the redirect and the callback.
// *scs.SessionManager satisfies it.
type StateStore interface {
	Put(ctx context.Context, key string, val any)
	PopString(ctx context.Context, key string) string
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
