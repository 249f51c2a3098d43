//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-backed passgate.CredentialStore.
// It works with any database GORM supports that understands
// INSERT ... ON CONFLICT (PostgreSQL, SQLite, recent MySQL via upsert).
//
// # Database Schema
//
// The package auto-migrates a single users table keyed by email.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	if err := gormstore.AutoMigrate(db); err != nil {
//	    return err
//	}
//	store := gormstore.NewCredentialStore(db)
package gorm
