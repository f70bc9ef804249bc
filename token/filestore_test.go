package token_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	clienterrors "github.com/novalearn/go-portal-client/internal/errors"
	"github.com/novalearn/go-portal-client/token"
)

func TestFileStoreRoundTrip(t *testing.T) {
	folder := t.TempDir()
	store, err := token.NewFileStore(folder)
	require.NoError(t, err)

	_, err = store.Get()
	require.ErrorIs(t, err, clienterrors.ErrNoToken)

	pair := token.Pair("access-1", "refresh-1")
	require.NoError(t, store.Put(pair))

	got, err := store.Get()
	require.NoError(t, err)
	require.Equal(t, "access-1", got.AccessToken)
	require.Equal(t, "refresh-1", got.RefreshToken)

	// Reopening the store sees the same persisted pair.
	reopened, err := token.NewFileStore(folder)
	require.NoError(t, err)
	got, err = reopened.Get()
	require.NoError(t, err)
	require.Equal(t, "access-1", got.AccessToken)
}

func TestFileStoreClearIsIdempotent(t *testing.T) {
	store, err := token.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(token.Pair("access-1", "refresh-1")))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	_, err = store.Get()
	require.ErrorIs(t, err, clienterrors.ErrNoToken)
}

func TestFileStoreCorruptedFileTreatedAsEmpty(t *testing.T) {
	folder := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(folder, "session.json"), []byte("{not json"), 0o600))

	store, err := token.NewFileStore(folder)
	require.NoError(t, err)

	_, err = store.Get()
	require.ErrorIs(t, err, clienterrors.ErrNoToken)

	// The store recovers: a fresh put overwrites the corrupted file.
	require.NoError(t, store.Put(token.Pair("access-1", "")))
	got, err := store.Get()
	require.NoError(t, err)
	require.Equal(t, "access-1", got.AccessToken)
}

func TestFileStorePreferences(t *testing.T) {
	folder := t.TempDir()
	store, err := token.NewFileStore(folder)
	require.NoError(t, err)

	require.Equal(t, "", store.Preference("theme"))
	require.NoError(t, store.SetPreference("theme", "dark"))
	require.NoError(t, store.Put(token.Pair("access-1", "")))
	require.Equal(t, "dark", store.Preference("theme"))

	// Logout drops preferences along with the token.
	require.NoError(t, store.Clear())
	require.Equal(t, "", store.Preference("theme"))
}
