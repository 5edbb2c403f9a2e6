package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meirlamdan/rssbox/internal/search"
	"github.com/meirlamdan/rssbox/internal/storage"
)

var (
	itemsUnread  bool
	itemsStarred bool
	itemsBefore  int64
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Show a page of recent items",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := store.Query(storage.ItemFilter{
			Before:      itemsBefore,
			UnreadOnly:  itemsUnread,
			StarredOnly: itemsStarred,
		})
		if err != nil {
			return err
		}
		for _, it := range page.Items {
			marks := ""
			if !it.Read {
				marks += "*"
			}
			if it.Starred {
				marks += "★"
			}
			when := "          "
			if !it.Published.IsZero() {
				when = it.Published.Format("2006-01-02")
			}
			fmt.Printf("%-2s %s  %s\n", marks, when, it.Title)
		}
		fmt.Printf("items: %d\n", page.Total)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <item-id>...",
	Short: "Mark items as read",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.MarkRead(args...); err != nil {
			return err
		}
		n, err := store.CountUnread()
		if err != nil {
			return err
		}
		fmt.Printf("unread: %d\n", n)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over stored items",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := search.Open(cfg.Database.SearchIndex)
		if err != nil {
			return fmt.Errorf("opening search index: %w", err)
		}
		defer engine.Close()

		hits, err := engine.Search(strings.Join(args, " "), 20)
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Printf("%.2f  %s  (%s)\n", h.Score, h.Title, h.ItemID)
		}
		return nil
	},
}

func init() {
	itemsCmd.Flags().BoolVar(&itemsUnread, "unread", false, "unread items only")
	itemsCmd.Flags().BoolVar(&itemsStarred, "starred", false, "starred items only")
	itemsCmd.Flags().Int64Var(&itemsBefore, "before", 0, "page cursor: strictly older than this sort timestamp (unix ms)")
	rootCmd.AddCommand(itemsCmd, readCmd, searchCmd)
}
