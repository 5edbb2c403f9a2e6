// Package sync drives feed synchronization: the per-feed pipeline
// (fetch, parse, diff, persist, notify) and the scheduler that decides when
// cycles run.
package sync

import (
	"context"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/meirlamdan/rssbox/internal/config"
	"github.com/meirlamdan/rssbox/internal/feed"
	"github.com/meirlamdan/rssbox/internal/fetch"
	"github.com/meirlamdan/rssbox/internal/storage"
)

type Fetcher interface {
	Fetch(ctx context.Context, url, etag, lastModified string) (*fetch.Result, error)
}

type Notifier interface {
	Dispatch(ctx context.Context, feed *storage.Feed, items []*storage.Item) error
}

type Indexer interface {
	IndexItems(items []*storage.Item) error
}

// Syncer runs the per-feed pipeline. Feeds are processed sequentially in
// subscription order; a feed's failure never aborts the cycle.
type Syncer struct {
	store      *storage.Store
	fetcher    Fetcher
	parser     feed.Parser
	notifier   Notifier
	indexer    Indexer // optional
	initialCap int
	now        func() time.Time
}

func NewSyncer(store *storage.Store, fetcher Fetcher, parser feed.Parser, cfg config.SyncConfig) *Syncer {
	return &Syncer{
		store:      store,
		fetcher:    fetcher,
		parser:     parser,
		initialCap: cfg.InitialItemCap,
		now:        time.Now,
	}
}

// SetNotifier wires the notification dispatcher.
func (s *Syncer) SetNotifier(n Notifier) { s.notifier = n }

// SetIndexer wires the search index.
func (s *Syncer) SetIndexer(ix Indexer) { s.indexer = ix }

// CycleResult summarizes one sync cycle.
type CycleResult struct {
	Feeds        int `json:"feeds"`
	FeedsWithNew int `json:"feeds_with_new"`
	NewItems     int `json:"new_items"`
}

// SyncFeed fetches one feed and ingests whatever is new. LastChecked and any
// captured validators are persisted on every path, including failures, so
// future requests stay conditional. The watermark is committed only after
// the new items are durably stored.
func (s *Syncer) SyncFeed(ctx context.Context, f *storage.Feed) (int, error) {
	f.LastChecked = s.now()

	res, err := s.fetcher.Fetch(ctx, f.URL, f.ETag, f.LastModified)
	if err != nil {
		s.saveFeed(f)
		return 0, err
	}
	if res.Unchanged() {
		s.saveFeed(f)
		return 0, nil
	}

	if res.ETag != "" {
		f.ETag = res.ETag
	}
	if res.LastModified != "" {
		f.LastModified = res.LastModified
	}

	parsed, title, err := s.parser.Parse(res.Body)
	if err != nil {
		s.saveFeed(f) // keep the fresh validators even when parsing failed
		return 0, err
	}
	if f.Title == "" && title != "" {
		f.Title = title
	}

	kept, watermark := feed.Diff(parsed, f.Watermark, s.initialCap)
	items := buildItems(f.ID, kept)

	inserted, err := s.store.UpsertItems(items)
	if err != nil {
		s.saveFeed(f) // watermark not advanced, items will be retried
		return 0, err
	}

	f.Watermark = watermark
	if err := s.store.SaveFeed(f); err != nil {
		return len(inserted), err
	}

	if s.indexer != nil && len(inserted) > 0 {
		if err := s.indexer.IndexItems(inserted); err != nil {
			log.Printf("[WARN] indexing %d items for %s failed, %v", len(inserted), f.URL, err)
		}
	}
	if s.notifier != nil && len(inserted) > 0 {
		if err := s.notifier.Dispatch(ctx, f, inserted); err != nil {
			log.Printf("[WARN] notification for %s failed, %v", f.URL, err)
		}
	}

	return len(inserted), nil
}

// RunCycle synchronizes all feeds, or just one when feedID is set. Per-feed
// failures are logged and skipped.
func (s *Syncer) RunCycle(ctx context.Context, feedID string) (CycleResult, error) {
	feeds, err := s.store.ListFeeds()
	if err != nil {
		return CycleResult{}, fmt.Errorf("listing feeds: %w", err)
	}

	if feedID != "" {
		var scoped []*storage.Feed
		for _, f := range feeds {
			if f.ID == feedID {
				scoped = append(scoped, f)
			}
		}
		if len(scoped) == 0 {
			return CycleResult{}, fmt.Errorf("feed %s: %w", feedID, storage.ErrNotFound)
		}
		feeds = scoped
	}

	res := CycleResult{Feeds: len(feeds)}
	for _, f := range feeds {
		n, err := s.SyncFeed(ctx, f)
		if err != nil {
			log.Printf("[WARN] sync of %s failed, %v", f.URL, err)
			continue
		}
		if n > 0 {
			res.FeedsWithNew++
			res.NewItems += n
		}
	}
	return res, nil
}

func (s *Syncer) saveFeed(f *storage.Feed) {
	if err := s.store.SaveFeed(f); err != nil {
		log.Printf("[WARN] saving feed %s failed, %v", f.URL, err)
	}
}

func buildItems(feedID string, parsed []feed.ParsedItem) []*storage.Item {
	items := make([]*storage.Item, 0, len(parsed))
	for _, p := range parsed {
		id := p.GUID
		if id == "" {
			id = feedID + ":" + p.Link
		}
		it := &storage.Item{
			ID:          id,
			FeedID:      feedID,
			Title:       p.Title,
			Link:        p.Link,
			Description: p.Description,
			Content:     p.Content,
			Media:       p.Media,
			Published:   p.Published,
		}
		if !p.Published.IsZero() {
			it.SortTS = p.Published.UnixMilli()
		}
		items = append(items, it)
	}
	return items
}
