// Package server exposes the presentation-layer HTTP API: item pages,
// counts, read/star mutations, feed subscription management, refresh and
// search. All storage failures on user-initiated actions surface as JSON
// errors; background failures never reach this layer.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/meirlamdan/rssbox/internal/search"
	"github.com/meirlamdan/rssbox/internal/storage"
	rsync "github.com/meirlamdan/rssbox/internal/sync"
	"github.com/meirlamdan/rssbox/internal/unread"
)

type Server struct {
	store     *storage.Store
	scheduler *rsync.Scheduler
	searcher  *search.Engine
	unread    *unread.Aggregator
	router    chi.Router
}

func New(store *storage.Store, scheduler *rsync.Scheduler, searcher *search.Engine, agg *unread.Aggregator) *Server {
	s := &Server{
		store:     store,
		scheduler: scheduler,
		searcher:  searcher,
		unread:    agg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/items", s.handleGetItems)
		r.Get("/items/count", s.handleCountAll)
		r.Get("/items/unread", s.handleCountUnread)
		r.Get("/items/unread/by-feed", s.handleUnreadByFeed)
		r.Post("/items/read", s.handleMarkRead)
		r.Post("/items/read-all", s.handleMarkAllRead)
		r.Post("/items/delete", s.handleDeleteItems)
		r.Post("/items/delete-all", s.handleDeleteAll)
		r.Post("/items/{itemID}/star", s.handleStar)

		r.Get("/feeds", s.handleListFeeds)
		r.Post("/feeds", s.handleSubscribe)
		r.Delete("/feeds/{feedID}", s.handleUnsubscribe)
		r.Post("/feeds/{feedID}/read", s.handleMarkFeedRead)
		r.Post("/feeds/{feedID}/clear", s.handleClearFeed)
		r.Patch("/feeds/{feedID}", s.handleUpdateFeed)

		r.Post("/refresh", s.handleRefresh)
		r.Get("/search", s.handleSearch)
		r.Get("/badge", s.handleBadge)
		r.Get("/status", s.handleStatus)
	})

	s.router = r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	log.Printf("[INFO] http api on %s", addr)
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	return srv.ListenAndServe()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] writing response failed, %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) recountUnread() {
	if s.unread != nil {
		_, _ = s.unread.Recompute()
	}
}

// GET /api/items?id=&feed=&before=&unread=1&starred=1
func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ItemFilter{
		ID:          q.Get("id"),
		FeedID:      q.Get("feed"),
		UnreadOnly:  q.Get("unread") == "1",
		StarredOnly: q.Get("starred") == "1",
	}
	if v := q.Get("before"); v != "" {
		before, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("bad before cursor %q", v))
			return
		}
		filter.Before = before
	}

	page, err := s.store.Query(filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCountAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountAll()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleCountUnread(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountUnread()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleUnreadByFeed(w http.ResponseWriter, r *http.Request) {
	group, err := s.store.GroupUnreadByFeed()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.MarkRead(req.IDs...); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.recountUnread()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkAllRead(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.recountUnread()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMarkFeedRead(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkFeedRead(chi.URLParam(r, "feedID")); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.recountUnread()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	deleted, err := s.store.DeleteItems(req.IDs)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.searcher != nil {
		_ = s.searcher.RemoveItems(req.IDs)
	}
	s.recountUnread()
	s.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.DeleteAll()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.recountUnread()
	s.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Starred bool `json:"starred"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.store.SetStarred(chi.URLParam(r, "itemID"), req.Starred)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.ListFeeds()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if feeds == nil {
		feeds = []*storage.Feed{}
	}
	s.writeJSON(w, http.StatusOK, feeds)
}

// POST /api/feeds {"url": "...", "alias": "..."}
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL   string `json:"url"`
		Alias string `json:"alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid feed url %q", req.URL))
		return
	}

	feed := &storage.Feed{
		ID:        uuid.NewString(),
		URL:       req.URL,
		Alias:     req.Alias,
		CreatedAt: time.Now(),
		Notifications: storage.FeedNotifications{
			Enabled:  false,
			Priority: "normal",
		},
	}
	if err := s.store.SaveFeed(feed); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	// pull the new subscription right away
	if s.scheduler != nil {
		if _, err := s.scheduler.Refresh(r.Context(), feed.ID); err != nil {
			log.Printf("[WARN] initial sync of %s failed, %v", feed.URL, err)
		}
	}

	s.writeJSON(w, http.StatusCreated, feed)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedID")
	if err := s.store.DeleteFeed(feedID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.searcher != nil {
		_ = s.searcher.RemoveFeed(feedID)
	}
	s.recountUnread()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/feeds/{feedID}/clear?include_starred=1
func (s *Server) handleClearFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedID")
	includeStarred := r.URL.Query().Get("include_starred") == "1"
	deleted, err := s.store.DeleteByFeed(feedID, includeStarred)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.recountUnread()
	s.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// PATCH /api/feeds/{feedID} {"alias": ..., "notifications": {...}}
func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := s.store.GetFeed(chi.URLParam(r, "feedID"))
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	var req struct {
		Alias         *string                    `json:"alias"`
		Notifications *storage.FeedNotifications `json:"notifications"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Alias != nil {
		feed.Alias = *req.Alias
	}
	if req.Notifications != nil {
		feed.Notifications = *req.Notifications
	}
	if err := s.store.SaveFeed(feed); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, feed)
}

// POST /api/refresh?feed=
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("scheduler not running"))
		return
	}
	res, err := s.scheduler.Refresh(r.Context(), r.URL.Query().Get("feed"))
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("search not enabled"))
		return
	}
	hits, err := s.searcher.Search(r.URL.Query().Get("q"), 50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountUnread()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, unread.BadgeFor(n))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := "idle"
	if s.scheduler != nil {
		state = s.scheduler.State()
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"state": state})
}
