package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meirlamdan/rssbox/internal/config"
)

func testClient() *Client {
	return NewClient(config.FetchConfig{
		Timeout:     5 * time.Second,
		UserAgent:   "rssbox-test/1.0",
		MaxBodySize: 1 << 20,
	})
}

func TestClient_FetchSendsConditionalHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	_, err := testClient().Fetch(context.Background(), srv.URL, `"etag-1"`, "Mon, 02 Jan 2006 15:04:05 GMT")
	require.NoError(t, err)

	assert.Equal(t, `"etag-1"`, got.Get("If-None-Match"))
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", got.Get("If-Modified-Since"))
	assert.Equal(t, "rssbox-test/1.0", got.Get("User-Agent"))
	assert.Contains(t, got.Get("Accept"), "application/rss+xml")
}

func TestClient_FetchOmitsEmptyValidators(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("<rss/>"))
	}))
	defer srv.Close()

	_, err := testClient().Fetch(context.Background(), srv.URL, "", "")
	require.NoError(t, err)

	_, hasETag := got["If-None-Match"]
	_, hasModified := got["If-Modified-Since"]
	assert.False(t, hasETag)
	assert.False(t, hasModified)
}

func TestClient_FetchNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	res, err := testClient().Fetch(context.Background(), srv.URL, `"etag-1"`, "")
	require.NoError(t, err)

	assert.True(t, res.NotModified)
	assert.True(t, res.Unchanged())
	assert.Empty(t, res.Body)
}

func TestClient_FetchServerErrorIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := testClient().Fetch(context.Background(), srv.URL, "", "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.True(t, res.Unchanged())
	assert.False(t, res.NotModified)
}

func TestClient_FetchCapturesValidators(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"etag-2"`)
		w.Header().Set("Last-Modified", "Tue, 03 Jan 2006 15:04:05 GMT")
		w.Write([]byte("<rss version=\"2.0\"><channel><title>t</title></channel></rss>"))
	}))
	defer srv.Close()

	res, err := testClient().Fetch(context.Background(), srv.URL, "", "")
	require.NoError(t, err)

	assert.Equal(t, `"etag-2"`, res.ETag)
	assert.Equal(t, "Tue, 03 Jan 2006 15:04:05 GMT", res.LastModified)
	assert.False(t, res.Unchanged())
	assert.NotEmpty(t, res.Body)
}

func TestClient_FetchBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	c := NewClient(config.FetchConfig{Timeout: 5 * time.Second, UserAgent: "t", MaxBodySize: 1024})
	_, err := c.Fetch(context.Background(), srv.URL, "", "")
	assert.Error(t, err)
}

func TestClient_FetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testClient().Fetch(context.Background(), srv.URL, "", "")
	assert.Error(t, err)
}
