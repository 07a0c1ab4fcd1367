package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoadBeforeFirstSave(t *testing.T) {
	store := newTestStore(t)

	panelOpen, activeID, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, panelOpen)
	assert.Empty(t, activeID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, true, "c42"))

	panelOpen, activeID, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, panelOpen)
	assert.Equal(t, "c42", activeID)
}

func TestSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, true, "c1"))
	require.NoError(t, store.Save(ctx, false, ""))

	panelOpen, activeID, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, panelOpen)
	assert.Empty(t, activeID)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, true, "c7"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	panelOpen, activeID, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.True(t, panelOpen)
	assert.Equal(t, "c7", activeID)
}
