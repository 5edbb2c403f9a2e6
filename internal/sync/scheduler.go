package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/meirlamdan/rssbox/internal/config"
)

// Connectivity reports whether the network is reachable. The daemon default
// assumes it always is; tests and platforms with a real signal plug in
// their own.
type Connectivity interface {
	Online() bool
}

type AlwaysOnline struct{}

func (AlwaysOnline) Online() bool { return true }

type refreshReq struct {
	feedID string
	reply  chan refreshResp
}

type refreshResp struct {
	res CycleResult
	err error
}

// Scheduler owns the sync cadence: the periodic timer, manual refreshes, the
// startup bootstrap and offline deferral. All cycles run on one event-loop
// goroutine, so two cycles can never overlap; the running flag is
// observability, not the lock.
type Scheduler struct {
	syncer   *Syncer
	interval time.Duration
	poll     time.Duration
	conn     Connectivity

	refreshCh chan refreshReq
	events    chan CycleResult
	running   atomic.Bool
	pending   bool // fetch deferred until connectivity returns; loop-owned

	onCycle []func(CycleResult)

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(syncer *Syncer, cfg config.SyncConfig, conn Connectivity) *Scheduler {
	if conn == nil {
		conn = AlwaysOnline{}
	}
	return &Scheduler{
		syncer:    syncer,
		interval:  cfg.Interval,
		poll:      cfg.OnlinePoll,
		conn:      conn,
		refreshCh: make(chan refreshReq),
		events:    make(chan CycleResult, 4),
	}
}

// OnCycleDone registers a hook run after every completed cycle, e.g. the
// unread recount. Must be called before Start.
func (s *Scheduler) OnCycleDone(fn func(CycleResult)) {
	s.onCycle = append(s.onCycle, fn)
}

// Events delivers a result for every cycle that produced at least one new
// item.
func (s *Scheduler) Events() <-chan CycleResult {
	return s.events
}

// State reports "running" while a cycle is in flight, "idle" otherwise.
func (s *Scheduler) State() string {
	if s.running.Load() {
		return "running"
	}
	return "idle"
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.started = true
	go s.loop(ctx)
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-done
}

// Refresh runs a cycle on demand, optionally scoped to one feed. It queues
// behind an in-flight cycle rather than racing it.
func (s *Scheduler) Refresh(ctx context.Context, feedID string) (CycleResult, error) {
	req := refreshReq{feedID: feedID, reply: make(chan refreshResp, 1)}
	select {
	case s.refreshCh <- req:
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp.res, resp.err
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	log.Printf("[INFO] scheduler active, interval %v", s.interval)

	var pollTicker *time.Ticker
	var pollC <-chan time.Time
	startPoll := func() {
		if pollTicker == nil {
			pollTicker = time.NewTicker(s.poll)
			pollC = pollTicker.C
		}
	}
	stopPoll := func() {
		if pollTicker != nil {
			pollTicker.Stop()
			pollTicker = nil
			pollC = nil
		}
	}
	defer stopPoll()

	// startup bootstrap
	if s.conn.Online() {
		s.runCycle(ctx, "")
	} else {
		s.pending = true
		startPoll()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if s.conn.Online() {
				s.runCycle(ctx, "")
				continue
			}
			log.Printf("[DEBUG] offline, deferring sync")
			s.pending = true
			startPoll()

		case <-pollC:
			if !s.conn.Online() {
				continue
			}
			if s.pending {
				s.pending = false
				s.runCycle(ctx, "")
			}
			stopPoll()

		case req := <-s.refreshCh:
			res, err := s.runCycle(ctx, req.feedID)
			req.reply <- refreshResp{res: res, err: err}
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, feedID string) (CycleResult, error) {
	s.running.Store(true)
	defer s.running.Store(false)

	res, err := s.syncer.RunCycle(ctx, feedID)
	if err != nil {
		log.Printf("[WARN] sync cycle failed, %v", err)
		return res, err
	}

	log.Printf("[DEBUG] cycle done: %d feeds, %d new items", res.Feeds, res.NewItems)
	if res.NewItems > 0 {
		select {
		case s.events <- res:
		default:
		}
	}
	for _, fn := range s.onCycle {
		fn(res)
	}
	return res, nil
}
