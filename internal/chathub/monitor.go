package chathub

import (
	"context"
	"log"
	"time"

	"nashenas/backend/internal/config"
)

// Monitor periodically sweeps the engine for idle sessions and stale
// searches.
type Monitor struct {
	Engine   *Engine
	Interval time.Duration

	IdleTimeout   time.Duration
	SearchTimeout time.Duration
}

func NewMonitor(e *Engine) *Monitor {
	return &Monitor{
		Engine:        e,
		Interval:      config.MonitorInterval,
		IdleTimeout:   config.IdleTimeout,
		SearchTimeout: config.SearchTimeout,
	}
}

// Run blocks until the context is cancelled, sweeping on every tick.
func (m *Monitor) Run(ctx context.Context) {
	log.Printf("Inactivity monitor started (interval %s, idle timeout %s)", m.Interval, m.IdleTimeout)
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Inactivity monitor stopped.")
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Sweep runs one pass over sessions and searches. Exposed for tests and for
// a final pass during shutdown.
func (m *Monitor) Sweep(now time.Time) {
	if n := m.Engine.sweepIdle(now, m.IdleTimeout); n > 0 {
		log.Printf("Timed out %d idle session(s)", n)
	}
	if n := m.Engine.sweepSearches(now, m.SearchTimeout); n > 0 {
		log.Printf("Expired %d stale search(es)", n)
	}
}
