package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/meirlamdan/rssbox/internal/feed"
	"github.com/meirlamdan/rssbox/internal/fetch"
	"github.com/meirlamdan/rssbox/internal/storage"
	rsync "github.com/meirlamdan/rssbox/internal/sync"
)

var (
	addAlias  string
	addNotify bool
)

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Subscribe to a feed and pull its initial items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		feedURL := args[0]
		u, err := url.Parse(feedURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid feed url %q", feedURL)
		}

		f := &storage.Feed{
			ID:        uuid.NewString(),
			URL:       feedURL,
			Alias:     addAlias,
			CreatedAt: time.Now(),
			Notifications: storage.FeedNotifications{
				Enabled:  addNotify,
				Priority: "normal",
			},
		}
		if err := store.SaveFeed(f); err != nil {
			return fmt.Errorf("saving feed: %w", err)
		}

		syncer := rsync.NewSyncer(store, fetch.NewClient(cfg.Fetch), feed.NewParser(), cfg.Sync)
		n, err := syncer.SyncFeed(cmd.Context(), f)
		if err != nil {
			fmt.Printf("subscribed %s (initial fetch failed: %v)\n", f.DisplayName(), err)
			return nil
		}
		fmt.Printf("subscribed %s, %d items\n", f.DisplayName(), n)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribed feeds with unread counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		feeds, err := store.ListFeeds()
		if err != nil {
			return err
		}
		unreadByFeed, err := store.GroupUnreadByFeed()
		if err != nil {
			return err
		}
		for _, f := range feeds {
			checked := "never"
			if !f.LastChecked.IsZero() {
				checked = f.LastChecked.Format("2006-01-02 15:04")
			}
			fmt.Printf("%s  %-30s  unread=%d  checked=%s\n", f.ID, f.DisplayName(), unreadByFeed[f.ID], checked)
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <feed-id>",
	Short: "Unsubscribe from a feed and delete its items, starred included",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.DeleteFeed(args[0]); err != nil {
			return fmt.Errorf("removing feed: %w", err)
		}
		fmt.Println("removed")
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [feed-id]",
	Short: "Run one sync cycle, optionally for a single feed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		feedID := ""
		if len(args) == 1 {
			feedID = args[0]
		}
		syncer := rsync.NewSyncer(store, fetch.NewClient(cfg.Fetch), feed.NewParser(), cfg.Sync)
		res, err := syncer.RunCycle(cmd.Context(), feedID)
		if err != nil {
			return err
		}
		fmt.Printf("%d feeds checked, %d new items\n", res.Feeds, res.NewItems)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addAlias, "alias", "", "display alias for the feed")
	addCmd.Flags().BoolVar(&addNotify, "notify", false, "enable notifications for this feed")
	rootCmd.AddCommand(addCmd, listCmd, removeCmd, refreshCmd)
}
