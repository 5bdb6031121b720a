// Package store persists the client's single credential.
package store

import (
	"context"
	"errors"
)

// ErrNoCredential is returned by Load when nothing is stored.
var ErrNoCredential = errors.New("no stored credential")

// Credentials is durable client-local storage for one opaque credential.
type Credentials interface {
	// Load returns the stored credential or ErrNoCredential.
	Load(ctx context.Context) (string, error)

	// Save replaces the stored credential.
	Save(ctx context.Context, token string) error

	// Clear removes the stored credential. Clearing an empty store is not an error.
	Clear(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}
