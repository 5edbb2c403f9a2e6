// Package unread maintains the derived unread count behind the UI badge.
// The count is never authoritative: every recompute rescans the store's
// unread index.
package unread

import (
	"strconv"
	"sync"

	log "github.com/go-pkgz/lgr"
)

// Counter is the slice of the store the aggregator needs.
type Counter interface {
	CountUnread() (int, error)
}

// Badge is the rendered badge state derived from the unread count.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// BadgeFor renders a count: empty text at zero, the count on blue otherwise.
func BadgeFor(count int) Badge {
	if count == 0 {
		return Badge{}
	}
	return Badge{Text: strconv.Itoa(count), Color: "blue"}
}

type Aggregator struct {
	store Counter

	mu    sync.Mutex
	last  int
	subs  []chan int
}

func New(store Counter) *Aggregator {
	return &Aggregator{store: store}
}

// Recompute rescans the unread index and fans the fresh count out to
// subscribers. Called after every mutation that can change read state.
func (a *Aggregator) Recompute() (int, error) {
	count, err := a.store.CountUnread()
	if err != nil {
		log.Printf("[WARN] unread recount failed, %v", err)
		return 0, err
	}

	a.mu.Lock()
	a.last = count
	subs := append([]chan int(nil), a.subs...)
	a.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- count:
		default: // slow subscriber keeps only the next update
		}
	}
	return count, nil
}

// Last returns the most recently computed count.
func (a *Aggregator) Last() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Subscribe returns a channel receiving unread counts as they change.
func (a *Aggregator) Subscribe() <-chan int {
	ch := make(chan int, 1)
	a.mu.Lock()
	a.subs = append(a.subs, ch)
	a.mu.Unlock()
	return ch
}
