package registry

import (
	"context"
	"time"

	"github.com/stewardlog/incident-service-go/log"
)

const DefaultEvictionInterval = 30 * time.Second

// EvictionScheduler sweeps the registry on a fixed interval and removes
// stale sessions. It is the only timer driven part of the core.
type EvictionScheduler struct {
	registry *Registry
	interval time.Duration
	l        *log.Logger
	done     chan struct{}
}

type SchedulerOption func(*EvictionScheduler)

func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *EvictionScheduler) {
		s.interval = interval
	}
}

func WithSchedulerLogger(arg *log.Logger) SchedulerOption {
	return func(s *EvictionScheduler) {
		s.l = arg
	}
}

func NewEvictionScheduler(r *Registry, opts ...SchedulerOption) *EvictionScheduler {
	ret := &EvictionScheduler{
		registry: r,
		interval: DefaultEvictionInterval,
		l:        log.Default().Named("registry.eviction"),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Start launches the sweep loop. The loop terminates when ctx is canceled.
func (s *EvictionScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				s.l.Info("eviction scheduler stopped")
				return
			case <-ticker.C:
				if evicted := s.registry.EvictStale(time.Now()); evicted > 0 {
					s.l.Info("eviction sweep done", log.Int("evicted", evicted))
				}
			}
		}
	}()
}

// Done is closed after the sweep loop has terminated.
func (s *EvictionScheduler) Done() <-chan struct{} {
	return s.done
}
