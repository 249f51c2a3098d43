//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pg "github.com/panyam/passgate"
)

// AutoMigrate runs database migrations for the users table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserModel{})
}

// mutableColumns are rewritten on upsert. created_at keeps its first value.
var mutableColumns = []string{
	"name",
	"password_hash",
	"google_id",
	"reset_token",
	"reset_token_expiry",
	"updated_at",
}

// CredentialStore implements pg.CredentialStore using GORM
type CredentialStore struct {
	db *gorm.DB

	// Single writer within this process; the transaction covers the rest
	mu sync.Mutex
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) Load(ctx context.Context) (pg.Users, error) {
	return loadUsers(s.db.WithContext(ctx))
}

func (s *CredentialStore) Save(ctx context.Context, users pg.Users) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveUsers(tx, users)
	})
}

func (s *CredentialStore) Update(ctx context.Context, fn func(users pg.Users) (pg.Users, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Other processes sharing the database queue here until commit
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE").Error; err != nil {
				return fmt.Errorf("failed to lock users: %w", err)
			}
		}
		users, err := loadUsers(tx)
		if err != nil {
			return err
		}
		updated, err := fn(users)
		if err != nil {
			return err
		}
		return saveUsers(tx, updated)
	})
	if errors.Is(err, pg.ErrNoChange) {
		return nil
	}
	return err
}

func loadUsers(db *gorm.DB) (pg.Users, error) {
	var models []UserModel
	if err := db.Order("created_at, email").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	users := make(pg.Users, 0, len(models))
	for i := range models {
		users = append(users, models[i].ToUser())
	}
	return users, nil
}

// saveUsers upserts every record and removes rows that are no longer present
func saveUsers(tx *gorm.DB, users pg.Users) error {
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns(mutableColumns),
		}).Create(UserToModel(u)).Error
		if err != nil {
			return fmt.Errorf("failed to save user %s: %w", u.Email, err)
		}
	}

	del := tx
	if len(emails) > 0 {
		del = del.Where("email NOT IN ?", emails)
	} else {
		del = del.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	if err := del.Delete(&UserModel{}).Error; err != nil {
		return fmt.Errorf("failed to prune users: %w", err)
	}
	return nil
}
