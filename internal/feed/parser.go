// Package feed turns raw feed bytes into parsed items and decides which of
// them are new relative to a feed's watermark.
package feed

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/meirlamdan/rssbox/internal/storage"
)

// ParsedItem is the narrow contract with the feed content parser. Published
// is the zero time when the source omits or malforms the date.
type ParsedItem struct {
	GUID        string
	Title       string
	Link        string
	Description string
	Content     string
	Media       *storage.Media
	Published   time.Time
}

// Parser is the external parsing contract consumed by the sync pipeline.
type Parser interface {
	Parse(content []byte) ([]ParsedItem, string, error)
}

// GofeedParser parses RSS and Atom through gofeed.
type GofeedParser struct {
	parser *gofeed.Parser
}

func NewParser() *GofeedParser {
	return &GofeedParser{parser: gofeed.NewParser()}
}

// Parse returns the feed's items and its declared title. A malformed
// document is a parse error; the caller treats it as "no new items".
func (p *GofeedParser) Parse(content []byte) ([]ParsedItem, string, error) {
	f, err := p.parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, "", fmt.Errorf("parsing feed: %w", err)
	}

	items := make([]ParsedItem, 0, len(f.Items))
	for _, item := range f.Items {
		pi := ParsedItem{
			GUID:        item.GUID,
			Title:       item.Title,
			Link:        item.Link,
			Description: item.Description,
			Content:     item.Content,
			Media:       extractMedia(item),
		}
		if item.PublishedParsed != nil {
			pi.Published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			pi.Published = *item.UpdatedParsed
		}
		items = append(items, pi)
	}

	return items, f.Title, nil
}

// extractMedia picks a single media reference: the first enclosure, then the
// item image.
func extractMedia(item *gofeed.Item) *storage.Media {
	for _, enc := range item.Enclosures {
		if enc.URL != "" {
			return &storage.Media{URL: enc.URL, Type: enc.Type}
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return &storage.Media{URL: item.Image.URL}
	}
	return nil
}
