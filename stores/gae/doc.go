//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore passgate.CredentialStore.
// It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
//   - UserSet: a single root entity per namespace
//   - User: one credential record per email, child of the UserSet root
//
// Keeping every User under one parent lets Update read and rewrite the whole
// set in a single transaction.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewCredentialStore(client, "") // default namespace
package gae
