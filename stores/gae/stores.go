//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	pg "github.com/panyam/passgate"
)

// Kind constants for Datastore entities
const (
	KindUser    = "User"
	KindUserSet = "UserSet"
)

// rootKeyName names the single parent of every user entity, which lets the
// full set be read inside a transaction with an ancestor query.
const rootKeyName = "default"

// CredentialStore implements pg.CredentialStore using Google Cloud Datastore
type CredentialStore struct {
	client    *datastore.Client
	namespace string

	mu sync.Mutex

	// Overridable for tests
	Now func() time.Time
}

// NewCredentialStore creates a new Datastore-backed CredentialStore
func NewCredentialStore(client *datastore.Client, namespace string) *CredentialStore {
	return &CredentialStore{
		client:    client,
		namespace: namespace,
		Now:       time.Now,
	}
}

func (s *CredentialStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CredentialStore) rootKey() *datastore.Key {
	key := datastore.NameKey(KindUserSet, rootKeyName, nil)
	key.Namespace = s.namespace
	return key
}

func (s *CredentialStore) userKey(email string) *datastore.Key {
	key := datastore.NameKey(KindUser, email, s.rootKey())
	key.Namespace = s.namespace
	return key
}

func (s *CredentialStore) query() *datastore.Query {
	query := datastore.NewQuery(KindUser).Ancestor(s.rootKey())
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}
	return query
}

func (s *CredentialStore) Load(ctx context.Context) (pg.Users, error) {
	var entities []*UserEntity
	it := s.client.Run(ctx, s.query())
	for {
		var entity UserEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load users: %w", err)
		}
		entities = append(entities, &entity)
	}
	return toUsers(entities), nil
}

func (s *CredentialStore) Save(ctx context.Context, users pg.Users) error {
	return s.Update(ctx, func(pg.Users) (pg.Users, error) {
		return users, nil
	})
}

func (s *CredentialStore) Update(ctx context.Context, fn func(users pg.Users) (pg.Users, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entities []*UserEntity
		if _, err := s.client.GetAll(ctx, s.query().Transaction(tx), &entities); err != nil {
			return fmt.Errorf("failed to load users: %w", err)
		}

		updated, err := fn(toUsers(entities))
		if err != nil {
			return err
		}
		return s.writeTx(tx, entities, updated)
	})
	if errors.Is(err, pg.ErrNoChange) {
		return nil
	}
	return err
}

// writeTx puts every record, keeping each entity's original created_at, and
// deletes entities that are no longer in the set.
func (s *CredentialStore) writeTx(tx *datastore.Transaction, existing []*UserEntity, users pg.Users) error {
	now := s.now()
	created := make(map[string]time.Time, len(existing))
	for _, e := range existing {
		created[e.Email] = e.CreatedAt
	}

	keys := make([]*datastore.Key, 0, len(users))
	puts := make([]*UserEntity, 0, len(users))
	for _, u := range users {
		key := s.userKey(u.Email)
		entity := UserToEntity(u, key)
		entity.CreatedAt = now
		if t, ok := created[u.Email]; ok {
			entity.CreatedAt = t
			delete(created, u.Email)
		}
		entity.UpdatedAt = now
		keys = append(keys, key)
		puts = append(puts, entity)
	}
	if len(keys) > 0 {
		if _, err := tx.PutMulti(keys, puts); err != nil {
			return fmt.Errorf("failed to save users: %w", err)
		}
	}

	var removed []*datastore.Key
	for email := range created {
		removed = append(removed, s.userKey(email))
	}
	if len(removed) > 0 {
		if err := tx.DeleteMulti(removed); err != nil {
			return fmt.Errorf("failed to prune users: %w", err)
		}
	}
	return nil
}

// toUsers orders entities by creation time, then email
func toUsers(entities []*UserEntity) pg.Users {
	slices.SortFunc(entities, func(a, b *UserEntity) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Email, b.Email)
	})
	users := make(pg.Users, 0, len(entities))
	for _, e := range entities {
		users = append(users, e.ToUser())
	}
	return users
}
