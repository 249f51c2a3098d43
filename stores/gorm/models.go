//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	pg "github.com/panyam/passgate"
)

// UserModel is the GORM model for credential records
type UserModel struct {
	Email            string     `gorm:"primaryKey;size:255"`
	Name             string     `gorm:"size:255"`
	PasswordHash     string     `gorm:"size:255"`
	GoogleID         string     `gorm:"size:255;index"`
	ResetToken       string     `gorm:"size:128;index"`
	ResetTokenExpiry *time.Time `gorm:"index"`
	CreatedAt        time.Time  `gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *pg.User {
	return &pg.User{
		Email:            m.Email,
		Name:             m.Name,
		PasswordHash:     m.PasswordHash,
		GoogleID:         m.GoogleID,
		ResetToken:       m.ResetToken,
		ResetTokenExpiry: m.ResetTokenExpiry,
	}
}

func UserToModel(u *pg.User) *UserModel {
	return &UserModel{
		Email:            u.Email,
		Name:             u.Name,
		PasswordHash:     u.PasswordHash,
		GoogleID:         u.GoogleID,
		ResetToken:       u.ResetToken,
		ResetTokenExpiry: u.ResetTokenExpiry,
	}
}
