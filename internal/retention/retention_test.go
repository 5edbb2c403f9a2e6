package retention

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meirlamdan/rssbox/internal/config"
	"github.com/meirlamdan/rssbox/internal/storage"
)

func TestManager_Sweep(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -31)
	fresh := now.AddDate(0, 0, -5)

	_, err = store.UpsertItems([]*storage.Item{
		{ID: "old", FeedID: "f1", Published: old, SortTS: old.UnixMilli()},
		{ID: "oldStarred", FeedID: "f1", Published: old, SortTS: old.UnixMilli()},
		{ID: "fresh", FeedID: "f1", Published: fresh, SortTS: fresh.UnixMilli()},
	})
	require.NoError(t, err)
	require.NoError(t, store.SetStarred("oldStarred", true))

	m := NewManager(store, config.RetentionConfig{Days: 30, SweepInterval: time.Hour})
	m.now = func() time.Time { return now }

	deleted, err := m.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	n, err := store.CountAll()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "starred and fresh items survive")

	// second sweep is a no-op
	deleted, err = m.Sweep()
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
