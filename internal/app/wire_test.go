package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chorus/internal/domain"
	"chorus/internal/state"
	"chorus/internal/store"
)

func TestNewWireHydratesCaches(t *testing.T) {
	dir := t.TempDir()
	cache := store.NewCacheFileStore(dir)
	require.NoError(t, cache.SaveGroupCache(map[domain.ConversationID]domain.GroupID{"conv": "gid"}))
	require.NoError(t, cache.SaveProcessed(map[string]bool{"item-1": true}))

	w, err := NewWire(Config{Home: dir, ServerURL: "http://127.0.0.1:1", Actor: "alice", Username: "alice"})
	require.NoError(t, err)
	require.NotNil(t, w.Identity)
	require.NotNil(t, w.Sessions)
	require.NotNil(t, w.Groups)
	require.NotNil(t, w.Inbox)

	// A restart neither rejoins known conversations nor reprocesses
	// settled inbox items.
	require.NoError(t, w.State.Update(func(d *state.Data) error {
		require.Equal(t, domain.GroupID("gid"), d.Groups["conv"])
		require.True(t, d.Processed["item-1"])
		return nil
	}))
}
