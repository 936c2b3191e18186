package securestore

import (
	"context"
	"errors"
	"fmt"
)

// Well-known keys for the Spotify session.
const (
	KeyAccessToken  = "spotify_access_token"
	KeyRefreshToken = "spotify_refresh_token"
	KeyTokenExpiry  = "spotify_token_expiry"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("secret not found")

// Store is key/value persistence for secrets.
type Store interface {
	// Save writes value under key, replacing any existing value.
	Save(ctx context.Context, key, value string) error
	// Read returns the value for key, or ErrNotFound.
	Read(ctx context.Context, key string) (string, error)
	// Delete removes key. It returns ErrNotFound if nothing was stored.
	Delete(ctx context.Context, key string) error
}

// Backend names accepted by New.
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendMemory  = "memory"
)

// Options selects and configures a Store.
type Options struct {
	Backend string
	// Service is the keyring service name.
	Service string
	// Path is the file used by the file backend.
	Path string
}

// New returns the Store named by opts.Backend.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendKeyring, "":
		return NewKeyringStore(opts.Service)
	case BackendFile:
		return NewFileStore(opts.Path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
