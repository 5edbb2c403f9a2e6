package feed

import (
	"sort"
	"time"
)

// DefaultInitialCap bounds the first sync of a fresh subscription so a feed
// with deep history does not flood the store.
const DefaultInitialCap = 50

// Diff computes the genuinely new subset of parsed items against the feed's
// watermark and the advanced watermark value.
//
// With no watermark (first sync) it keeps at most the newest initialCap
// items. With a watermark it keeps items published strictly after it. The
// returned watermark is the maximum declared publication time among the kept
// items, or the old watermark unchanged when nothing was kept; it tracks the
// feed's own content clock, not "now".
//
// Items with an unparsable publication date carry the zero time. They sort
// as oldest possible: never newer than an existing watermark, never
// advancing it. This keeps watermark advancement monotonic for sources with
// broken dates.
func Diff(parsed []ParsedItem, watermark time.Time, initialCap int) ([]ParsedItem, time.Time) {
	if initialCap <= 0 {
		initialCap = DefaultInitialCap
	}

	var kept []ParsedItem
	if watermark.IsZero() {
		// source order is not guaranteed newest-first
		kept = make([]ParsedItem, len(parsed))
		copy(kept, parsed)
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Published.After(kept[j].Published)
		})
		if len(kept) > initialCap {
			kept = kept[:initialCap]
		}
	} else {
		for _, it := range parsed {
			if it.Published.After(watermark) {
				kept = append(kept, it)
			}
		}
	}

	next := watermark
	for _, it := range kept {
		if it.Published.After(next) {
			next = it.Published
		}
	}
	return kept, next
}
