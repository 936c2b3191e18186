package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err, "Failed to open database")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_Consent(t *testing.T) {
	db := openTestDB(t)

	got, err := db.Consent("mpv")
	require.NoError(t, err)
	require.Empty(t, got, "Unset consent should be empty")

	require.NoError(t, db.SetConsent("mpv", "authorized"))
	got, err = db.Consent("mpv")
	require.NoError(t, err)
	require.Equal(t, "authorized", got)

	require.NoError(t, db.ClearConsent("mpv"))
	got, err = db.Consent("mpv")
	require.NoError(t, err)
	require.Empty(t, got, "Cleared consent should be empty")
}

func TestDB_Artwork(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.Artwork("https://img/1")
	require.NoError(t, err)
	require.False(t, ok, "Empty cache should miss")

	require.NoError(t, db.PutArtwork("https://img/1", []byte{0x89, 'P', 'N', 'G'}))

	data, ok, err := db.Artwork("https://img/1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verse.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.SetConsent("mpv", "denied"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Consent("mpv")
	require.NoError(t, err)
	require.Equal(t, "denied", got, "Consent should survive a restart")
}
