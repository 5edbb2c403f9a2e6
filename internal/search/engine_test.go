package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meirlamdan/rssbox/internal/storage"
)

func setupEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func seedItems(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.IndexItems([]*storage.Item{
		{ID: "a", FeedID: "f1", Title: "Kubernetes networking deep dive", Description: "pods and services"},
		{ID: "b", FeedID: "f1", Title: "Weekly roundup", Description: "kubernetes news and more"},
		{ID: "c", FeedID: "f2", Title: "Baking sourdough", Content: "flour water salt"},
	}))
}

func TestEngine_SearchRanksTitleAboveBody(t *testing.T) {
	e := setupEngine(t)
	seedItems(t, e)

	hits, err := e.Search("kubernetes", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "a", hits[0].ItemID, "title match outranks description match")
	assert.Equal(t, "Kubernetes networking deep dive", hits[0].Title)
	assert.Equal(t, "f1", hits[0].FeedID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestEngine_SearchContent(t *testing.T) {
	e := setupEngine(t)
	seedItems(t, e)

	hits, err := e.Search("sourdough flour", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "c", hits[0].ItemID)
}

func TestEngine_SearchShortQuery(t *testing.T) {
	e := setupEngine(t)
	seedItems(t, e)

	for _, q := range []string{"", "k", "  "} {
		hits, err := e.Search(q, 10)
		require.NoError(t, err)
		assert.Empty(t, hits, "query %q", q)
	}
}

func TestEngine_RemoveItems(t *testing.T) {
	e := setupEngine(t)
	seedItems(t, e)

	require.NoError(t, e.RemoveItems([]string{"a"}))

	hits, err := e.Search("kubernetes", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ItemID)
}

func TestEngine_RemoveFeed(t *testing.T) {
	e := setupEngine(t)
	seedItems(t, e)

	require.NoError(t, e.RemoveFeed("f1"))

	hits, err := e.Search("kubernetes", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// the other feed is untouched
	hits, err = e.Search("sourdough", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestEngine_IndexRefreshesExisting(t *testing.T) {
	e := setupEngine(t)
	seedItems(t, e)

	require.NoError(t, e.IndexItems([]*storage.Item{
		{ID: "a", FeedID: "f1", Title: "Completely different now"},
	}))

	hits, err := e.Search("different", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ItemID)
}
