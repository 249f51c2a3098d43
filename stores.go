package passgate

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoChange can be returned from an Update callback to skip the save.
var ErrNoChange = errors.New("no change")

// User is a single credential record
type User struct {
	Email            string     `json:"email"`
	Name             string     `json:"name,omitempty"`
	PasswordHash     string     `json:"passwordHash,omitempty"`
	GoogleID         string     `json:"googleId,omitempty"`
	ResetToken       string     `json:"resetToken,omitempty"`
	ResetTokenExpiry *time.Time `json:"resetTokenExpiry,omitempty"`
}

// HasPassword reports whether the record can be used for password login
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// IsGoogleLinked reports whether a Google account has been attached
func (u *User) IsGoogleLinked() bool { return u.GoogleID != "" }

// SetResetToken attaches a pending reset token. Token and expiry always travel together.
func (u *User) SetResetToken(token string, expiry time.Time) {
	u.ResetToken = token
	u.ResetTokenExpiry = &expiry
}

// ClearResetToken drops any pending reset token
func (u *User) ClearResetToken() {
	u.ResetToken = ""
	u.ResetTokenExpiry = nil
}

// HasValidResetToken checks the token matches and its expiry is strictly after now
func (u *User) HasValidResetToken(token string, now time.Time) bool {
	if token == "" || u.ResetToken == "" || u.ResetTokenExpiry == nil {
		return false
	}
	return u.ResetToken == token && u.ResetTokenExpiry.After(now)
}

// DefaultName derives a display name from the local part of an email
func DefaultName(email string) string {
	if idx := strings.Index(email, "@"); idx >= 0 {
		return email[:idx]
	}
	return email
}

// Users is the full in-memory record set
type Users []*User

// Find returns the record for the exact email, or nil
func (us Users) Find(email string) *User {
	for _, u := range us {
		if u.Email == email {
			return u
		}
	}
	return nil
}

// FindByResetToken returns the record holding a still-valid reset token, or nil
func (us Users) FindByResetToken(token string, now time.Time) *User {
	for _, u := range us {
		if u.HasValidResetToken(token, now) {
			return u
		}
	}
	return nil
}

// Add appends a new record. Returns ErrUserExists if the email is taken.
func (us Users) Add(u *User) (Users, error) {
	if us.Find(u.Email) != nil {
		return us, ErrUserExists
	}
	return append(us, u), nil
}

// CredentialStore persists the record set
type CredentialStore interface {
	// Load returns every record. A missing backing store is initialized empty.
	Load(ctx context.Context) (Users, error)

	// Save overwrites the full record set
	Save(ctx context.Context, users Users) error

	// Update runs a load, fn, save cycle with no other mutation in between.
	// If fn returns ErrNoChange nothing is saved and Update returns nil.
	// Any other error from fn aborts the save and is returned as is.
	Update(ctx context.Context, fn func(users Users) (Users, error)) error
}
