package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Fetch         FetchConfig         `mapstructure:"fetch"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Retention     RetentionConfig     `mapstructure:"retention"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Server        ServerConfig        `mapstructure:"server"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchIndex string        `mapstructure:"search_index"`
}

type FetchConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	MaxBodySize int64         `mapstructure:"max_body_size"`
}

type SyncConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	OnlinePoll     time.Duration `mapstructure:"online_poll"`
	InitialItemCap int           `mapstructure:"initial_item_cap"`
}

type RetentionConfig struct {
	Days          int           `mapstructure:"days"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type NotificationsConfig struct {
	Enabled     bool             `mapstructure:"enabled"`
	MaxPerBatch int              `mapstructure:"max_per_batch"`
	Grouping    bool             `mapstructure:"grouping"`
	QuietHours  QuietHoursConfig `mapstructure:"quiet_hours"`
}

// QuietHoursConfig is a wall-clock window in "HH:MM" form. Start > End means
// the window wraps past midnight.
type QuietHoursConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Start   string `mapstructure:"start"`
	End     string `mapstructure:"end"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Database: DatabaseConfig{
			Path:        filepath.Join(homeDir, ".rssbox", "rssbox.db"),
			Timeout:     1 * time.Second,
			SearchIndex: filepath.Join(homeDir, ".rssbox", "index.bleve"),
		},
		Fetch: FetchConfig{
			Timeout:     30 * time.Second,
			UserAgent:   "rssbox/1.0 (feed sync; github.com/meirlamdan/rssbox)",
			MaxBodySize: 10 * 1024 * 1024,
		},
		Sync: SyncConfig{
			Interval:       45 * time.Minute,
			OnlinePoll:     3 * time.Minute,
			InitialItemCap: 50,
		},
		Retention: RetentionConfig{
			Days:          30,
			SweepInterval: 24 * time.Hour,
		},
		Notifications: NotificationsConfig{
			Enabled:     true,
			MaxPerBatch: 5,
			Grouping:    true,
			QuietHours: QuietHoursConfig{
				Enabled: false,
				Start:   "22:00",
				End:     "08:00",
			},
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("database", cfg.Database)
	v.SetDefault("fetch", cfg.Fetch)
	v.SetDefault("sync", cfg.Sync)
	v.SetDefault("retention", cfg.Retention)
	v.SetDefault("notifications", cfg.Notifications)
	v.SetDefault("server", cfg.Server)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "rssbox")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RSSBOX")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	return &config, nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
}
