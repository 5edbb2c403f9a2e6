// Package search keeps a bleve full-text index over stored items, updated
// incrementally as the store mutates.
package search

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/meirlamdan/rssbox/internal/storage"
)

// Hit is one search match.
type Hit struct {
	ItemID string  `json:"item_id"`
	FeedID string  `json:"feed_id"`
	Title  string  `json:"title"`
	Score  float64 `json:"score"`
}

type Engine struct {
	idx bleve.Index
}

// Open opens or creates a bleve index at indexPath. An empty path builds an
// in-memory index, used by tests and the CLI one-shots.
func Open(indexPath string) (*Engine, error) {
	if indexPath == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, err
		}
		return &Engine{idx: idx}, nil
	}

	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, err
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, err
		}
	}
	return &Engine{idx: idx}, nil
}

func (e *Engine) Close() error {
	return e.idx.Close()
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true

	desc := bleve.NewTextFieldMapping()
	desc.Analyzer = standard.Name
	desc.Store = false

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = false

	feedID := bleve.NewTextFieldMapping()
	feedID.Analyzer = standard.Name
	feedID.Store = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("description", desc)
	dm.AddFieldMappingsAt("content", content)
	dm.AddFieldMappingsAt("feed_id", feedID)

	im.DefaultMapping = dm
	return im
}

// IndexItems adds or refreshes items in the index.
func (e *Engine) IndexItems(items []*storage.Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := e.idx.NewBatch()
	for _, it := range items {
		if err := batch.Index(it.ID, map[string]any{
			"feed_id":     it.FeedID,
			"title":       it.Title,
			"description": it.Description,
			"content":     it.Content,
		}); err != nil {
			return err
		}
	}
	return e.idx.Batch(batch)
}

// RemoveItems drops items from the index.
func (e *Engine) RemoveItems(ids []string) error {
	batch := e.idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return e.idx.Batch(batch)
}

// RemoveFeed drops every indexed item of a feed.
func (e *Engine) RemoveFeed(feedID string) error {
	tq := bleve.NewTermQuery(feedID)
	tq.SetField("feed_id")

	for {
		req := bleve.NewSearchRequestOptions(tq, 1000, 0, false)
		res, err := e.idx.Search(req)
		if err != nil {
			return err
		}
		if len(res.Hits) == 0 {
			return nil
		}
		for _, h := range res.Hits {
			if err := e.idx.Delete(h.ID); err != nil {
				return err
			}
		}
	}
}

// Search runs a boosted disjunction over title, description and content.
func (e *Engine) Search(query string, limit int) ([]Hit, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []Hit{}, nil
	}

	var qs []bleveQuery.Query
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		qt := bleve.NewMatchQuery(tok)
		qt.SetField("title")
		qt.SetBoost(4.0)
		qs = append(qs, qt)

		qtp := bleve.NewPrefixQuery(tok)
		qtp.SetField("title")
		qtp.SetBoost(3.5)
		qs = append(qs, qtp)

		qd := bleve.NewMatchQuery(tok)
		qd.SetField("description")
		qd.SetBoost(2.0)
		qs = append(qs, qd)

		qc := bleve.NewMatchQuery(tok)
		qc.SetField("content")
		qc.SetBoost(1.0)
		qs = append(qs, qc)
	}
	if len(qs) == 0 {
		return []Hit{}, nil
	}

	q := bleve.NewDisjunctionQuery(qs...)
	srch := bleve.NewSearchRequestOptions(q, limit, 0, false)
	srch.Fields = []string{"title", "feed_id"}
	res, err := e.idx.Search(srch)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ItemID: h.ID, Score: h.Score}
		if t, ok := h.Fields["title"].(string); ok {
			hit.Title = t
		}
		if f, ok := h.Fields["feed_id"].(string); ok {
			hit.FeedID = f
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
