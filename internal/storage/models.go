package storage

import (
	"net/url"
	"time"
)

type Feed struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Title         string            `json:"title"`
	Alias         string            `json:"alias,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastChecked   time.Time         `json:"last_checked"`
	Watermark     time.Time         `json:"watermark"`
	ETag          string            `json:"etag,omitempty"`
	LastModified  string            `json:"last_modified,omitempty"`
	Notifications FeedNotifications `json:"notifications"`
}

// FeedNotifications is the per-feed notification policy. Feeds are opted out
// by default; the user enables them one by one.
type FeedNotifications struct {
	Enabled  bool   `json:"enabled"`
	Priority string `json:"priority"` // "normal" or "high"
}

// DisplayName returns the user alias when set, then the feed title, then the
// source hostname as a last resort.
func (f *Feed) DisplayName() string {
	if f.Alias != "" {
		return f.Alias
	}
	if f.Title != "" {
		return f.Title
	}
	if u, err := url.Parse(f.URL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return f.URL
}

type Media struct {
	URL    string `json:"url"`
	Type   string `json:"type,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

type Item struct {
	ID          string    `json:"id"` // feed-declared guid, unique store-wide
	FeedID      string    `json:"feed_id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	Media       *Media    `json:"media,omitempty"`
	Published   time.Time `json:"published"` // source-declared, zero when unparsable
	SortTS      int64     `json:"sort_ts"`   // unix ms of Published, recency ordering key
	CreatedAt   time.Time `json:"created_at"`
	Read        bool      `json:"read"`
	Starred     bool      `json:"starred"`
}
