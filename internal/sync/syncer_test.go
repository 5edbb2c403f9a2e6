package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meirlamdan/rssbox/internal/config"
	"github.com/meirlamdan/rssbox/internal/feed"
	"github.com/meirlamdan/rssbox/internal/fetch"
	"github.com/meirlamdan/rssbox/internal/notify"
	"github.com/meirlamdan/rssbox/internal/storage"
)

func setupStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testSyncer(t *testing.T, store *storage.Store) *Syncer {
	t.Helper()
	client := fetch.NewClient(config.FetchConfig{
		Timeout:     5 * time.Second,
		UserAgent:   "rssbox-test/1.0",
		MaxBodySize: 10 << 20,
	})
	return NewSyncer(store, client, feed.NewParser(), config.SyncConfig{InitialItemCap: 50})
}

// rssBody renders n items, newest last, one hour apart starting at base.
func rssBody(title string, base time.Time, n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>` + title + `</title>`)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		fmt.Fprintf(&b, `<item><guid>%s-%03d</guid><title>post %d</title><link>http://example.com/%d</link><pubDate>%s</pubDate></item>`,
			title, i, i, i, ts.Format(time.RFC1123))
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func TestSyncFeed_InitialBaselineCap(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody("deep", base, 75))
	}))
	defer srv.Close()

	store := setupStore(t)
	syncer := testSyncer(t, store)

	f := &storage.Feed{ID: "f1", URL: srv.URL, CreatedAt: time.Now()}
	n, err := syncer.SyncFeed(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 50, n, "first sync keeps only the newest 50")

	count, err := store.CountAll()
	require.NoError(t, err)
	assert.Equal(t, 50, count)

	stored, err := store.GetFeed("f1")
	require.NoError(t, err)
	assert.True(t, stored.Watermark.Equal(base.Add(74*time.Hour)), "watermark is the newest pubDate")
	assert.Equal(t, "deep", stored.Title)
	assert.False(t, stored.LastChecked.IsZero())

	// the 25 oldest never made it in
	page, err := store.Query(storage.ItemFilter{ID: "deep-024"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestSyncFeed_WatermarkIncremental(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	var items atomic.Int32
	items.Store(3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody("inc", base, int(items.Load())))
	}))
	defer srv.Close()

	store := setupStore(t)
	syncer := testSyncer(t, store)

	f := &storage.Feed{ID: "f1", URL: srv.URL, CreatedAt: time.Now()}
	n, err := syncer.SyncFeed(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// the next poll sees the same 3 plus 2 newer items
	items.Store(5)
	f, err = store.GetFeed("f1")
	require.NoError(t, err)
	n, err = syncer.SyncFeed(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only items after the watermark are new")

	count, err := store.CountAll()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	stored, err := store.GetFeed("f1")
	require.NoError(t, err)
	assert.True(t, stored.Watermark.Equal(base.Add(4*time.Hour)))
}

func TestSyncFeed_NotModified(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, rssBody("cond", base, 3))
	}))
	defer srv.Close()

	store := setupStore(t)
	syncer := testSyncer(t, store)
	sink := &recordingNotifier{}
	syncer.SetNotifier(sink)

	f := &storage.Feed{
		ID: "f1", URL: srv.URL, CreatedAt: time.Now(),
		Notifications: storage.FeedNotifications{Enabled: true},
	}
	_, err := syncer.SyncFeed(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, sink.calls, 1)

	stored, err := store.GetFeed("f1")
	require.NoError(t, err)
	require.Equal(t, `"v1"`, stored.ETag)
	firstCheck := stored.LastChecked
	firstMark := stored.Watermark

	n, err := syncer.SyncFeed(context.Background(), stored)
	require.NoError(t, err)
	assert.Zero(t, n, "304 means nothing new and no error")

	stored, err = store.GetFeed("f1")
	require.NoError(t, err)
	assert.True(t, stored.LastChecked.After(firstCheck) || stored.LastChecked.Equal(firstCheck))
	assert.True(t, stored.Watermark.Equal(firstMark), "watermark untouched on 304")
	assert.Len(t, sink.calls, 1, "no notification without new items")

	count, err := store.CountAll()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSyncFeed_ParseErrorKeepsValidators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"broken-v1"`)
		fmt.Fprint(w, "definitely not a feed")
	}))
	defer srv.Close()

	store := setupStore(t)
	syncer := testSyncer(t, store)

	f := &storage.Feed{ID: "f1", URL: srv.URL, CreatedAt: time.Now()}
	_, err := syncer.SyncFeed(context.Background(), f)
	require.Error(t, err)

	stored, err := store.GetFeed("f1")
	require.NoError(t, err)
	assert.Equal(t, `"broken-v1"`, stored.ETag, "validators survive a parse failure")
	assert.False(t, stored.LastChecked.IsZero())
}

func TestSyncFeed_ServerErrorIsQuiet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := setupStore(t)
	syncer := testSyncer(t, store)

	f := &storage.Feed{ID: "f1", URL: srv.URL, CreatedAt: time.Now()}
	n, err := syncer.SyncFeed(context.Background(), f)
	require.NoError(t, err, "a 5xx is a quiet no-op, not an error")
	assert.Zero(t, n)
}

type recordingNotifier struct {
	calls []struct {
		feedID string
		items  []*storage.Item
	}
}

func (r *recordingNotifier) Dispatch(_ context.Context, f *storage.Feed, items []*storage.Item) error {
	r.calls = append(r.calls, struct {
		feedID string
		items  []*storage.Item
	}{f.ID, items})
	return nil
}

func TestRunCycle_GroupedNotifications(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody("alpha", base, 3))
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody("beta", base, 3))
	}))
	defer srvB.Close()

	store := setupStore(t)
	require.NoError(t, store.SaveFeed(&storage.Feed{
		ID: "fa", URL: srvA.URL, CreatedAt: base,
		Notifications: storage.FeedNotifications{Enabled: true},
	}))
	require.NoError(t, store.SaveFeed(&storage.Feed{
		ID: "fb", URL: srvB.URL, CreatedAt: base.Add(time.Minute),
		Notifications: storage.FeedNotifications{Enabled: true},
	}))

	sink := &recordingSink{}
	syncer := testSyncer(t, store)
	syncer.SetNotifier(notify.NewDispatcher(config.NotificationsConfig{
		Enabled:     true,
		Grouping:    true,
		MaxPerBatch: 5,
	}, sink))

	res, err := syncer.RunCycle(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Feeds)
	assert.Equal(t, 2, res.FeedsWithNew)
	assert.Equal(t, 6, res.NewItems)

	require.Len(t, sink.sent, 2, "one grouped notification per feed")
	for _, n := range sink.sent {
		assert.Equal(t, "3 new items", n.Message)
		assert.Empty(t, n.ID.ItemID)
	}
}

type recordingSink struct {
	sent []notify.Notification
}

func (s *recordingSink) Notify(_ context.Context, n notify.Notification) error {
	s.sent = append(s.sent, n)
	return nil
}

func TestRunCycle_SingleFeedScope(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	var hitsA, hitsB atomic.Int32
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsA.Add(1)
		fmt.Fprint(w, rssBody("alpha", base, 1))
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsB.Add(1)
		fmt.Fprint(w, rssBody("beta", base, 1))
	}))
	defer srvB.Close()

	store := setupStore(t)
	require.NoError(t, store.SaveFeed(&storage.Feed{ID: "fa", URL: srvA.URL, CreatedAt: base}))
	require.NoError(t, store.SaveFeed(&storage.Feed{ID: "fb", URL: srvB.URL, CreatedAt: base}))

	syncer := testSyncer(t, store)
	res, err := syncer.RunCycle(context.Background(), "fb")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Feeds)
	assert.Zero(t, hitsA.Load())
	assert.EqualValues(t, 1, hitsB.Load())

	_, err = syncer.RunCycle(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunCycle_FeedFailureDoesNotAbort(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody("good", base, 2))
	}))
	defer srv.Close()

	store := setupStore(t)
	require.NoError(t, store.SaveFeed(&storage.Feed{ID: "bad", URL: "http://127.0.0.1:1", CreatedAt: base}))
	require.NoError(t, store.SaveFeed(&storage.Feed{ID: "good", URL: srv.URL, CreatedAt: base.Add(time.Minute)}))

	syncer := testSyncer(t, store)
	res, err := syncer.RunCycle(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Feeds)
	assert.Equal(t, 2, res.NewItems)
}

func TestBuildItems_IdentityFallback(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	items := buildItems("f1", []feed.ParsedItem{
		{GUID: "g1", Title: "with guid", Published: base},
		{Link: "http://example.com/x", Title: "no guid"},
	})

	require.Len(t, items, 2)
	assert.Equal(t, "g1", items[0].ID)
	assert.Equal(t, base.UnixMilli(), items[0].SortTS)

	assert.Equal(t, "f1:http://example.com/x", items[1].ID, "guid-less items key on feed and link")
	assert.Zero(t, items[1].SortTS, "unparsable date sorts to the epoch")
}
