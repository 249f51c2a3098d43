package passgate

import (
	"errors"
	"net/http"

	"github.com/panyam/passgate/internal/logging"
)

// HandleSignup processes user registration
func (a *LocalAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	creds, err := parseCredentials(w, r)
	if err != nil {
		logger.Debug("unreadable signup body", "err", err)
	}
	if creds.Email == "" || creds.Password == "" {
		writeError(w, NewAuthError(http.StatusBadRequest, ErrCodeMissingField, MsgEmailAndPasswordRequired, "email"))
		return
	}

	// Hash before taking the store lock, bcrypt is the slow part
	hash, err := a.Hasher.Hash(creds.Password)
	if err != nil {
		logger.Error("error hashing password", "err", err)
		writeServerError(w)
		return
	}

	name := creds.Name
	if name == "" {
		name = DefaultName(creds.Email)
	}

	err = a.Store.Update(r.Context(), func(users Users) (Users, error) {
		return users.Add(&User{
			Email:        creds.Email,
			Name:         name,
			PasswordHash: hash,
		})
	})
	if errors.Is(err, ErrUserExists) {
		writeError(w, NewAuthError(http.StatusConflict, ErrCodeUserExists, MsgUserExists, "email"))
		return
	}
	if err != nil {
		logger.Error("error creating user", "err", err)
		writeServerError(w)
		return
	}

	logger.Info("user created", "email", creds.Email)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User created successfully"})
}
