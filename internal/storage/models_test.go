package storage

import "testing"

func TestFeed_DisplayName(t *testing.T) {
	tests := []struct {
		name string
		feed Feed
		want string
	}{
		{"alias wins", Feed{Alias: "news", Title: "Example Blog", URL: "http://example.com/feed"}, "news"},
		{"title next", Feed{Title: "Example Blog", URL: "http://example.com/feed"}, "Example Blog"},
		{"hostname fallback", Feed{URL: "https://blog.example.com/feed.xml"}, "blog.example.com"},
		{"raw url last resort", Feed{URL: "not a url at all"}, "not a url at all"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.feed.DisplayName(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
