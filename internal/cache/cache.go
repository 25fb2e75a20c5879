package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is the lookup surface callers depend on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches whose entries expire.
type Cleaner interface {
	CleanExpired() int
}

// Sweeper periodically drops expired entries from every registered cache.
type Sweeper struct {
	mu     sync.Mutex
	caches map[string]Cleaner
	done   chan struct{}
	cancel context.CancelFunc
}

func NewSweeper() *Sweeper {
	return &Sweeper{caches: make(map[string]Cleaner)}
}

// Register adds a named cache. Registering the same name twice replaces it.
func (s *Sweeper) Register(name string, c Cleaner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches[name] = c
}

// Sweep runs one pass and returns the number of evicted entries.
func (s *Sweeper) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for name, c := range s.caches {
		if n := c.CleanExpired(); n > 0 {
			slog.Debug("Evicted expired cache entries", "component", "cache", "cache", name, "count", n)
			total += n
		}
	}
	return total
}

// Start sweeps every interval until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}
