//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	pg "github.com/panyam/passgate"
)

// UserEntity is the Datastore entity for credential records.
// Key name is the email, parent is the store's root key.
type UserEntity struct {
	Key              *datastore.Key `datastore:"__key__"`
	Email            string         `datastore:"email"`
	Name             string         `datastore:"name,noindex"`
	PasswordHash     string         `datastore:"password_hash,noindex"`
	GoogleID         string         `datastore:"google_id"`
	ResetToken       string         `datastore:"reset_token"`
	ResetTokenExpiry time.Time      `datastore:"reset_token_expiry"` // zero when no reset is pending
	CreatedAt        time.Time      `datastore:"created_at"`
	UpdatedAt        time.Time      `datastore:"updated_at"`
}

func (e *UserEntity) ToUser() *pg.User {
	u := &pg.User{
		Email:        e.Email,
		Name:         e.Name,
		PasswordHash: e.PasswordHash,
		GoogleID:     e.GoogleID,
		ResetToken:   e.ResetToken,
	}
	if !e.ResetTokenExpiry.IsZero() {
		expiry := e.ResetTokenExpiry
		u.ResetTokenExpiry = &expiry
	}
	return u
}

func UserToEntity(u *pg.User, key *datastore.Key) *UserEntity {
	e := &UserEntity{
		Key:          key,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		GoogleID:     u.GoogleID,
		ResetToken:   u.ResetToken,
	}
	if u.ResetTokenExpiry != nil {
		e.ResetTokenExpiry = *u.ResetTokenExpiry
	}
	return e
}
