package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	pg "github.com/panyam/passgate"
)

// FSCredentialStore keeps every record in one pretty-printed JSON array file
type FSCredentialStore struct {
	Path string

	// Serializes Update cycles and guards whole-file rewrites
	mu sync.Mutex
}

func NewFSCredentialStore(path string) *FSCredentialStore {
	return &FSCredentialStore{Path: path}
}

func (s *FSCredentialStore) Load(ctx context.Context) (pg.Users, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FSCredentialStore) Save(ctx context.Context, users pg.Users) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(users)
}

func (s *FSCredentialStore) Update(ctx context.Context, fn func(users pg.Users) (pg.Users, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	users, err := s.load()
	if err != nil {
		return err
	}
	updated, err := fn(users)
	if errors.Is(err, pg.ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.save(updated)
}

// load reads the file, creating it with an empty array when absent
func (s *FSCredentialStore) load() (pg.Users, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := s.save(pg.Users{}); err != nil {
				return nil, err
			}
			return pg.Users{}, nil
		}
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	var users pg.Users
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users file %s: %w", s.Path, err)
	}
	if users == nil {
		users = pg.Users{}
	}
	return users, nil
}

func (s *FSCredentialStore) save(users pg.Users) error {
	if users == nil {
		users = pg.Users{}
	}
	if dir := filepath.Dir(s.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create users directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(s.Path, data)
}
