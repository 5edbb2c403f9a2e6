// Package notify decides whether newly ingested items become user-facing
// notifications, applying the global policy (quiet hours, grouping, batch
// cap) and the per-feed opt-in.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/meirlamdan/rssbox/internal/config"
	"github.com/meirlamdan/rssbox/internal/storage"
)

// ID identifies a notification well enough to route a click back to the feed
// and, for ungrouped notifications, the specific item.
type ID struct {
	FeedID string
	ItemID string // empty for a grouped summary
	At     time.Time
}

// Encode renders the id as feed::<feedID>::item::<itemID|none>::<unix ms>.
func (id ID) Encode() string {
	item := id.ItemID
	if item == "" {
		item = "none"
	}
	return fmt.Sprintf("feed::%s::item::%s::%d", id.FeedID, item, id.At.UnixMilli())
}

// ParseID is the inverse of Encode.
func ParseID(s string) (ID, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 5 || parts[0] != "feed" || parts[2] != "item" {
		return ID{}, fmt.Errorf("malformed notification id %q", s)
	}
	ms, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("malformed notification timestamp %q: %w", parts[4], err)
	}
	id := ID{FeedID: parts[1], At: time.UnixMilli(ms)}
	if parts[3] != "none" {
		id.ItemID = parts[3]
	}
	return id, nil
}

// Notification is what gets handed to the OS-level sink.
type Notification struct {
	ID       ID
	Title    string
	Message  string
	Priority int // 1 normal, 2 high
}

// Sink delivers notifications to the outside world.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// LogSink writes notifications to the log; the daemon default when no OS
// sink is wired.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, n Notification) error {
	log.Printf("[INFO] notification %s: %s: %s", n.ID.Encode(), n.Title, n.Message)
	return nil
}

// Dispatcher evaluates notification policy for each feed's new items.
type Dispatcher struct {
	cfg  config.NotificationsConfig
	sink Sink

	// ViewerActive reports whether the item-list surface is currently in
	// front of the user; notifications are suppressed while it is. Nil
	// means never active.
	ViewerActive func() bool

	now func() time.Time
}

func NewDispatcher(cfg config.NotificationsConfig, sink Sink) *Dispatcher {
	return &Dispatcher{cfg: cfg, sink: sink, now: time.Now}
}

// Dispatch emits at most one notification for the feed's new items: a
// grouped "N new items" summary when grouping is on and more than one item
// arrived, otherwise a single notification for the newest item.
func (d *Dispatcher) Dispatch(ctx context.Context, feed *storage.Feed, items []*storage.Item) error {
	if len(items) == 0 {
		return nil
	}
	if !d.cfg.Enabled || !feed.Notifications.Enabled {
		return nil
	}
	if InQuietHours(d.cfg.QuietHours, d.now()) {
		return nil
	}
	if d.ViewerActive != nil && d.ViewerActive() {
		return nil
	}

	// a non-positive cap means uncapped, so batch is never empty here
	batch := items
	if d.cfg.MaxPerBatch > 0 && len(batch) > d.cfg.MaxPerBatch {
		batch = batch[:d.cfg.MaxPerBatch]
	}

	n := Notification{
		ID:       ID{FeedID: feed.ID, At: d.now()},
		Title:    feed.DisplayName(),
		Priority: 1,
	}
	if feed.Notifications.Priority == "high" {
		n.Priority = 2
	}

	if d.cfg.Grouping && len(items) > 1 {
		n.Message = fmt.Sprintf("%d new items", len(items))
	} else {
		n.Message = batch[0].Title
		if n.Message == "" {
			n.Message = "New item"
		}
		n.ID.ItemID = batch[0].ID
	}

	return d.sink.Notify(ctx, n)
}

// InQuietHours reports whether now's wall-clock time falls inside the
// configured window. Start > End is an overnight range wrapping midnight.
func InQuietHours(q config.QuietHoursConfig, now time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, okStart := minutesOfDay(q.Start)
	end, okEnd := minutesOfDay(q.End)
	if !okStart || !okEnd {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

func minutesOfDay(hhmm string) (int, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
