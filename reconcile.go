package passgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	xoauth2 "golang.org/x/oauth2"

	"github.com/panyam/passgate/internal/logging"
	"github.com/panyam/passgate/oauth2"
)

// LinkPolicy decides what happens when a Google login matches the email of an
// account that has no Google id yet.
type LinkPolicy int

const (
	// LinkByEmail attaches the Google id to the existing account
	LinkByEmail LinkPolicy = iota
	// RejectUnlinked refuses the login and leaves the account untouched
	RejectUnlinked
)

func (p LinkPolicy) String() string {
	switch p {
	case LinkByEmail:
		return "link"
	case RejectUnlinked:
		return "reject"
	}
	return fmt.Sprintf("LinkPolicy(%d)", int(p))
}

// ParseLinkPolicy accepts "link" or "reject"; empty means LinkByEmail
func ParseLinkPolicy(s string) (LinkPolicy, error) {
	switch s {
	case "", "link":
		return LinkByEmail, nil
	case "reject":
		return RejectUnlinked, nil
	}
	return LinkByEmail, fmt.Errorf("unknown link policy %q", s)
}

// ReconcileOutcome says what Reconcile did to the store
type ReconcileOutcome int

const (
	// OutcomeNone is returned alongside errors
	OutcomeNone ReconcileOutcome = iota
	OutcomeCreated
	OutcomeLinked
	OutcomeExisting
)

func (o ReconcileOutcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCreated:
		return "created"
	case OutcomeLinked:
		return "linked"
	case OutcomeExisting:
		return "existing"
	}
	return fmt.Sprintf("ReconcileOutcome(%d)", int(o))
}

// Reconciler maps a verified Google profile onto a credential record
type Reconciler struct {
	Store  CredentialStore
	Policy LinkPolicy
}

// Reconcile creates, links or reuses the record for info.Email in one store update.
// Under RejectUnlinked an unlinked password account yields ErrAccountNotLinkable.
// A profile missing its email or provider id yields ErrIncompleteProfile.
func (rc *Reconciler) Reconcile(ctx context.Context, info *oauth2.UserInfo) (*User, ReconcileOutcome, error) {
	if info == nil || info.Email == "" || info.ID == "" {
		return nil, OutcomeNone, ErrIncompleteProfile
	}
	var (
		result  User
		outcome ReconcileOutcome
	)
	err := rc.Store.Update(ctx, func(users Users) (Users, error) {
		user := users.Find(info.Email)
		switch {
		case user == nil:
			name := info.Name
			if name == "" {
				name = DefaultName(info.Email)
			}
			user = &User{Email: info.Email, Name: name, GoogleID: info.ID}
			users = append(users, user)
			outcome = OutcomeCreated
		case !user.IsGoogleLinked():
			if rc.Policy == RejectUnlinked {
				return users, ErrAccountNotLinkable
			}
			user.GoogleID = info.ID
			outcome = OutcomeLinked
		default:
			result = *user
			outcome = OutcomeExisting
			return users, ErrNoChange
		}
		result = *user
		return users, nil
	})
	if err != nil {
		return nil, OutcomeNone, err
	}
	return &result, outcome, nil
}

// GoogleUserHandler adapts the reconciler and session issuer to the OAuth callback
func GoogleUserHandler(rc *Reconciler, sessions *SessionIssuer) oauth2.HandleUserFunc {
	return func(ctx context.Context, provider string, token *xoauth2.Token, info *oauth2.UserInfo) (string, error) {
		logger := logging.FromContext(ctx)
		user, outcome, err := rc.Reconcile(ctx, info)
		if err != nil {
			if errors.Is(err, ErrAccountNotLinkable) {
				logger.Warn("refusing to link oauth account", "provider", provider, "email", info.Email)
				return "", oauth2.Fail(oauth2.TagAccountExists, err)
			}
			return "", err
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "oauth account reconciled",
			slog.String("provider", provider),
			slog.String("email", user.Email),
			slog.String("outcome", outcome.String()),
		)
		return sessions.Issue(user.Email)
	}
}
