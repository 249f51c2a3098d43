// Package passgate provides a small email/password and Google OAuth
// authentication service for Go applications.
//
// Passgate keeps every account in a single credential store. A record is keyed
// by email and may carry a bcrypt password hash, a linked Google account id,
// and at most one pending password reset token.
//
// # Architecture
//
// CredentialStore: Loads and saves the full record set. Mutations go through
// Update, which serializes read-modify-write cycles so that concurrent
// requests never lose each other's writes.
//
// LocalAuth: The JSON endpoints for signup, login, forgot-password and
// reset-password.
//
// SessionIssuer: Signs and verifies the HS256 session tokens handed out on a
// successful login. The signing secret must be supplied by the caller.
//
// Reconciler: Maps a verified Google identity onto a record, creating or
// linking one according to the configured LinkPolicy.
//
// # Basic Usage
//
//	import (
//	    "github.com/panyam/passgate"
//	    "github.com/panyam/passgate/stores"
//	)
//
//	store := stores.NewFSCredentialStore("users.json")
//	sessions, err := passgate.NewSessionIssuer(secret, "passgate", 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	gate := passgate.New(passgate.Options{
//	    Store:    store,
//	    Sessions: sessions,
//	})
//	http.ListenAndServe(":5000", gate.Handler())
//
// # Routes
//
//	POST /api/signup
//	POST /api/login
//	POST /api/forgot-password
//	POST /api/reset-password
//	GET  /api/me
//	GET  /health
//	GET  /auth/google
//	GET  /auth/google/callback
//
// # Security
//
// Passwords are hashed using bcrypt with cost 10. Password reset tokens are
// 32 random bytes, hex-encoded to 64 characters, and are valid for one hour and
// a single use. Login and forgot-password responses never reveal whether an
// email is registered.
package passgate
