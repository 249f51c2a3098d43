package passgate

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenExpiryPasswordReset is how long a reset token stays redeemable
const TokenExpiryPasswordReset = 1 * time.Hour // 1 hour

// GenerateSecureToken generates a cryptographically secure random token
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ResetTokens issues and redeems password reset tokens stored on the user record
type ResetTokens struct {
	Hasher Hasher
	Expiry time.Duration

	// Overridable for tests
	NewToken func() (string, error)
}

func NewResetTokens(hasher Hasher) *ResetTokens {
	return &ResetTokens{Hasher: hasher, Expiry: TokenExpiryPasswordReset}
}

// Issue attaches a fresh token to the user, replacing any pending one
func (t *ResetTokens) Issue(user *User, now time.Time) (string, error) {
	gen := t.NewToken
	if gen == nil {
		gen = GenerateSecureToken
	}
	token, err := gen()
	if err != nil {
		return "", err
	}
	expiry := t.Expiry
	if expiry <= 0 {
		expiry = TokenExpiryPasswordReset
	}
	user.SetResetToken(token, now.Add(expiry))
	return token, nil
}

// Redeem swaps in the new password for whichever record holds a live token
// and clears the token. Unknown and expired tokens fail the same way.
func (t *ResetTokens) Redeem(users Users, token, newPassword string, now time.Time) (*User, error) {
	user := users.FindByResetToken(token, now)
	if user == nil {
		return nil, ErrInvalidResetToken
	}
	hash, err := t.Hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	user.ClearResetToken()
	return user, nil
}
