// Package retention evicts old items on a fixed cadence, independent of the
// fetch schedule. Starred items are exempt regardless of age.
package retention

import (
	"context"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/meirlamdan/rssbox/internal/config"
)

// Store is the slice of the item store retention needs.
type Store interface {
	DeleteOlderThan(cutoff int64) (int, error)
}

type Manager struct {
	store    Store
	days     int
	interval time.Duration
	now      func() time.Time
}

func NewManager(store Store, cfg config.RetentionConfig) *Manager {
	return &Manager{
		store:    store,
		days:     cfg.Days,
		interval: cfg.SweepInterval,
		now:      time.Now,
	}
}

// Run sweeps once immediately, then on every tick until ctx is canceled.
// Sweep failures are background-only and logged.
func (m *Manager) Run(ctx context.Context) {
	log.Printf("[INFO] retention active, %d days, sweep every %v", m.days, m.interval)

	if _, err := m.Sweep(); err != nil {
		log.Printf("[WARN] retention sweep failed, %v", err)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(); err != nil {
				log.Printf("[WARN] retention sweep failed, %v", err)
			}
		}
	}
}

// Sweep deletes non-starred items published more than the retention window
// ago and returns how many went.
func (m *Manager) Sweep() (int, error) {
	cutoff := m.now().AddDate(0, 0, -m.days).UnixMilli()
	deleted, err := m.store.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Printf("[DEBUG] retention removed %d items", deleted)
	}
	return deleted, nil
}
