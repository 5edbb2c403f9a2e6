package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "", // callers point this at t.TempDir()
			Timeout:     1 * time.Second,
			SearchIndex: "",
		},
		Fetch: FetchConfig{
			Timeout:     5 * time.Second,
			UserAgent:   "rssbox-test/1.0",
			MaxBodySize: 1024 * 1024,
		},
		Sync: SyncConfig{
			Interval:       time.Minute,
			OnlinePoll:     time.Second,
			InitialItemCap: 50,
		},
		Retention: RetentionConfig{
			Days:          30,
			SweepInterval: time.Hour,
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
			Addr: "127.0.0.1:0",
		},
	}
}
