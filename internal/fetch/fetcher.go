// Package fetch is the conditional HTTP client for feed sources. It carries
// the stored ETag / Last-Modified validators so unchanged content costs a
// cheap 304.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/meirlamdan/rssbox/internal/config"
)

// Result is the outcome of one feed fetch. A 304 or any non-2xx status is
// not an error: the sync cycle treats both as "nothing new" and moves on.
type Result struct {
	Status       int
	Body         []byte
	ETag         string
	LastModified string
	NotModified  bool
}

// Unchanged reports that the fetch produced no new content to parse.
func (r *Result) Unchanged() bool {
	return r.NotModified || r.Status < 200 || r.Status > 299
}

type Client struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

func NewClient(cfg config.FetchConfig) *Client {
	return &Client{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodySize,
	}
}

// Fetch retrieves url, sending If-None-Match / If-Modified-Since when the
// stored validators are present. The response body is capped at the
// configured size.
func (c *Client) Fetch(ctx context.Context, url, etag, lastModified string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{Status: resp.StatusCode, NotModified: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Result{Status: resp.StatusCode}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("response exceeds %d bytes", c.maxBody)
	}

	return &Result{
		Status:       resp.StatusCode,
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
