package ttlcache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs periodic eviction for many caches from a single goroutine.
// Each registration keeps its own interval and is rescheduled after it fires.
type Sweeper struct {
	mu      sync.Mutex
	logger  *zap.Logger
	entries map[uint64]*sweepEntry
	nextID  uint64
	wake    chan struct{}
	stop    chan struct{}
	running bool
	wg      sync.WaitGroup
}

type sweepEntry struct {
	interval time.Duration
	due      time.Time
	sweep    func() int
}

// NewSweeper constructs an idle sweeper; it starts on the first registration.
func NewSweeper(logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		logger:  logger.Named("ttl_sweeper"),
		entries: make(map[uint64]*sweepEntry),
		wake:    make(chan struct{}, 1),
	}
}

// Register schedules sweep every interval and returns a handle for Unregister.
func (s *Sweeper) Register(interval time.Duration, sweep func() int) uint64 {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.entries[id] = &sweepEntry{
		interval: interval,
		due:      time.Now().Add(interval),
		sweep:    sweep,
	}
	if !s.running {
		s.running = true
		s.stop = make(chan struct{})
		s.wg.Add(1)
		go s.run(s.stop)
	}
	s.mu.Unlock()

	s.notify()
	return id
}

// Unregister removes a registration. Unknown handles are ignored.
func (s *Sweeper) Unregister(id uint64) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	s.notify()
}

// Stop ends the sweep goroutine and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

// Len returns the number of registered caches.
func (s *Sweeper) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Sweeper) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sweeper) run(stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		var timer *time.Timer
		var fire <-chan time.Time
		if wait, ok := s.nextWait(); ok {
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case <-stop:
			stopTimer(timer)
			return
		case <-s.wake:
			stopTimer(timer)
		case <-fire:
			s.runDue()
		}
	}
}

func (s *Sweeper) nextWait() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0, false
	}
	var earliest time.Time
	for _, entry := range s.entries {
		if earliest.IsZero() || entry.due.Before(earliest) {
			earliest = entry.due
		}
	}
	return max(time.Until(earliest), 0), true
}

func (s *Sweeper) runDue() {
	now := time.Now()
	s.mu.Lock()
	due := make([]func() int, 0, len(s.entries))
	for _, entry := range s.entries {
		if now.Before(entry.due) {
			continue
		}
		entry.due = now.Add(entry.interval)
		due = append(due, entry.sweep)
	}
	s.mu.Unlock()

	for _, sweep := range due {
		if removed := sweep(); removed > 0 {
			s.logger.Debug("expired cache entries evicted", zap.Int("removed", removed))
		}
	}
}

func stopTimer(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}
