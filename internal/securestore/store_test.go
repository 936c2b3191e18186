package securestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	keyring.MockInit()

	ks, err := NewKeyringStore("verse-test")
	if err != nil {
		t.Fatalf("NewKeyringStore() error = %v", err)
	}
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "secrets.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return map[string]Store{"keyring": ks, "file": fs, "memory": NewMemoryStore()}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Read(ctx, KeyAccessToken); !errors.Is(err, ErrNotFound) {
				t.Errorf("Read() on empty store error = %v, want ErrNotFound", err)
			}

			if err := s.Save(ctx, KeyAccessToken, "access_123"); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := s.Save(ctx, KeyRefreshToken, "refresh_456"); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := s.Save(ctx, KeyAccessToken, "access_789"); err != nil {
				t.Fatalf("Save() overwrite error = %v", err)
			}

			got, err := s.Read(ctx, KeyAccessToken)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if got != "access_789" {
				t.Errorf("Read() = %q, want %q", got, "access_789")
			}

			if err := s.Delete(ctx, KeyAccessToken); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := s.Read(ctx, KeyAccessToken); !errors.Is(err, ErrNotFound) {
				t.Errorf("Read() after Delete error = %v, want ErrNotFound", err)
			}
			if err := s.Delete(ctx, KeyAccessToken); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Delete() error = %v, want ErrNotFound", err)
			}

			if got, _ := s.Read(ctx, KeyRefreshToken); got != "refresh_456" {
				t.Errorf("unrelated key = %q, want %q", got, "refresh_456")
			}
		})
	}
}

func TestStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Save(ctx, KeyAccessToken, "x"); !errors.Is(err, context.Canceled) {
				t.Errorf("Save() error = %v, want context.Canceled", err)
			}
		})
	}
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if err := s.Save(context.Background(), KeyAccessToken, "secret"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %04o, want 0600", perm)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"keyring", Options{Backend: BackendKeyring, Service: "verse"}, false},
		{"default is keyring", Options{Service: "verse"}, false},
		{"file", Options{Backend: BackendFile, Path: filepath.Join(t.TempDir(), "s.json")}, false},
		{"keyring without service", Options{Backend: BackendKeyring}, true},
		{"unknown", Options{Backend: "vault"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
