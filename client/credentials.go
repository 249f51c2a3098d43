// Package client is a Go client for a passgate server. It keeps the session
// token per server and attaches it to outgoing requests.
package client

import (
	"time"
)

// ServerCredential is the session held for one server
type ServerCredential struct {
	SessionToken string    `json:"session_token"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsExpired returns true if the session token has expired
func (c *ServerCredential) IsExpired() bool {
	return !time.Now().Before(c.ExpiresAt)
}

// CredentialStore defines the interface for storing and retrieving credentials
type CredentialStore interface {
	// GetCredential retrieves a credential for a server URL
	// Returns nil, nil if no credential exists for the server
	GetCredential(serverURL string) (*ServerCredential, error)

	// SetCredential stores a credential for a server URL
	SetCredential(serverURL string, cred *ServerCredential) error

	// RemoveCredential removes a credential for a server URL
	RemoveCredential(serverURL string) error

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}
