package main

import (
	"fmt"

	log "github.com/go-pkgz/lgr"
	"github.com/spf13/cobra"

	"github.com/meirlamdan/rssbox/internal/config"
	"github.com/meirlamdan/rssbox/internal/storage"
)

var (
	configPath string
	dbPath     string
	dbg        bool

	cfg   *config.Config
	store *storage.Store
)

var rootCmd = &cobra.Command{
	Use:   "rssbox",
	Short: "Feed synchronization daemon and local item store",
	Long: `rssbox keeps user-subscribed RSS/Atom feeds synchronized into a local
indexed store: conditional fetching, dedup against seen content,
notifications and retention.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLog(dbg)

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}

		store, err = storage.NewStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			return store.Close()
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to database file (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&dbg, "dbg", false, "debug mode")
}

func setupLog(dbg bool) {
	if dbg {
		log.Setup(log.Debug, log.CallerFile, log.Msec, log.LevelBraces)
		return
	}
	log.Setup(log.Msec, log.LevelBraces)
}
