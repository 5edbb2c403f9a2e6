package main

import (
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/go-pkgz/lgr"
	"github.com/spf13/cobra"

	"github.com/meirlamdan/rssbox/internal/feed"
	"github.com/meirlamdan/rssbox/internal/fetch"
	"github.com/meirlamdan/rssbox/internal/notify"
	"github.com/meirlamdan/rssbox/internal/retention"
	"github.com/meirlamdan/rssbox/internal/search"
	"github.com/meirlamdan/rssbox/internal/server"
	rsync "github.com/meirlamdan/rssbox/internal/sync"
	"github.com/meirlamdan/rssbox/internal/unread"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon: scheduler, retention and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		searcher, err := search.Open(cfg.Database.SearchIndex)
		if err != nil {
			return fmt.Errorf("opening search index: %w", err)
		}
		defer searcher.Close()

		syncer := rsync.NewSyncer(store, fetch.NewClient(cfg.Fetch), feed.NewParser(), cfg.Sync)
		syncer.SetIndexer(searcher)
		syncer.SetNotifier(notify.NewDispatcher(cfg.Notifications, notify.LogSink{}))

		agg := unread.New(store)

		scheduler := rsync.NewScheduler(syncer, cfg.Sync, rsync.AlwaysOnline{})
		scheduler.OnCycleDone(func(res rsync.CycleResult) {
			if _, err := agg.Recompute(); err == nil && res.NewItems > 0 {
				log.Printf("[INFO] %d new items across %d feeds", res.NewItems, res.FeedsWithNew)
			}
		})
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()

		go retention.NewManager(store, cfg.Retention).Run(ctx)

		srv := server.New(store, scheduler, searcher, agg)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Run(cfg.Server.Addr) }()

		select {
		case <-ctx.Done():
			log.Printf("[INFO] shutting down")
			return nil
		case err := <-errCh:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
