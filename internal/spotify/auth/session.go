package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tessro/verse/internal/securestore"
)

// Session is the OAuth credential bundle for the Spotify account.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Usable reports whether the access token can be used at now without
// refreshing first.
func (s *Session) Usable(now time.Time) bool {
	return s != nil && s.AccessToken != "" && now.Before(s.ExpiresAt.Add(-RefreshSkew))
}

// loadSession reads the session from store. It returns nil, nil when no
// access token is stored.
func loadSession(ctx context.Context, store securestore.Store) (*Session, error) {
	access, err := store.Read(ctx, securestore.KeyAccessToken)
	if errors.Is(err, securestore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s := &Session{AccessToken: access}

	refresh, err := store.Read(ctx, securestore.KeyRefreshToken)
	if err != nil && !errors.Is(err, securestore.ErrNotFound) {
		return nil, err
	}
	s.RefreshToken = refresh

	expiry, err := store.Read(ctx, securestore.KeyTokenExpiry)
	if err != nil && !errors.Is(err, securestore.ErrNotFound) {
		return nil, err
	}
	if expiry != "" {
		secs, err := strconv.ParseInt(expiry, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stored token expiry %q: %w", expiry, err)
		}
		s.ExpiresAt = time.Unix(secs, 0)
	}

	return s, nil
}

// saveSession writes every field of s. A refresh token is written only
// when present so an existing one is never cleared. If any write fails, the
// keys are put back the way they were, so the store never holds a token
// from one session with the expiry of another.
func saveSession(ctx context.Context, store securestore.Store, s *Session) error {
	prev := snapshotKeys(ctx, store)
	if err := writeSession(ctx, store, s); err != nil {
		restoreKeys(ctx, store, prev)
		return err
	}
	return nil
}

func writeSession(ctx context.Context, store securestore.Store, s *Session) error {
	if err := store.Save(ctx, securestore.KeyAccessToken, s.AccessToken); err != nil {
		return err
	}
	if s.RefreshToken != "" {
		if err := store.Save(ctx, securestore.KeyRefreshToken, s.RefreshToken); err != nil {
			return err
		}
	}
	return store.Save(ctx, securestore.KeyTokenExpiry, strconv.FormatInt(s.ExpiresAt.Unix(), 10))
}

var sessionKeys = []string{
	securestore.KeyAccessToken,
	securestore.KeyRefreshToken,
	securestore.KeyTokenExpiry,
}

// storedKey is a key's value before a write. Unknown keys could not be read
// and are left alone on restore.
type storedKey struct {
	value   string
	present bool
	unknown bool
}

func snapshotKeys(ctx context.Context, store securestore.Store) map[string]storedKey {
	prev := make(map[string]storedKey, len(sessionKeys))
	for _, key := range sessionKeys {
		v, err := store.Read(ctx, key)
		switch {
		case err == nil:
			prev[key] = storedKey{value: v, present: true}
		case errors.Is(err, securestore.ErrNotFound):
			prev[key] = storedKey{}
		default:
			prev[key] = storedKey{unknown: true}
		}
	}
	return prev
}

func restoreKeys(ctx context.Context, store securestore.Store, prev map[string]storedKey) {
	for key, k := range prev {
		switch {
		case k.unknown:
		case k.present:
			_ = store.Save(ctx, key, k.value)
		default:
			_ = store.Delete(ctx, key)
		}
	}
}
