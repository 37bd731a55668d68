package session

import (
	"sync"
	"time"
)

// Scheduler produces the periodic drivers behind running rooms. The Manager
// schedules one handle per running room; tests substitute a manual
// implementation to fire ticks deterministically.
type Scheduler interface {
	// Schedule invokes fn every period until the returned handle is
	// stopped. fn runs on the scheduler's goroutine for that handle;
	// overlapping fires are not allowed.
	Schedule(period time.Duration, fn func()) Handle
}

// Handle cancels a scheduled driver. Stop is synchronous: when it returns,
// no fire is in flight and none will follow. Stop is safe to call more
// than once but must not be called from inside the driven fn.
type Handle interface {
	Stop()
}

// TickerScheduler is the production Scheduler, one goroutine and
// time.Ticker per handle.
type TickerScheduler struct{}

// NewTickerScheduler creates the real ticker-backed scheduler.
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{}
}

func (s *TickerScheduler) Schedule(period time.Duration, fn func()) Handle {
	h := &tickerHandle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				select {
				case <-h.stop:
					// Stop raced the tick; the fire must not happen.
					return
				default:
				}
				fn()
			}
		}
	}()

	return h
}

type tickerHandle struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (h *tickerHandle) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.done
}
