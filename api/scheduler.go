/*
scheduler.go - Periodic notification sweep scheduler

PURPOSE:
  Drives the reminder sweep on a timer: 14-day advance reminders and
  start-today notices are derived from approved requests, so the sweep
  only needs to run often enough to catch each calendar day.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Sweeps immediately on start, then on every tick
  - The sweep itself is idempotent (store-level dedup), so overlapping
    runs and restarts are harmless; no scheduler-level locking

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - Enabled:  Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(notifications)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - vacation/notify.go: Sweep implementation and dedup contract
  - handlers.go: TriggerSweep endpoint (manual sweep)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/vacation-engine/vacation"
)

// SweepScheduler runs the reminder sweep periodically.
type SweepScheduler struct {
	Notifications *vacation.NotificationService
	Interval      time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewSweepScheduler creates a new scheduler over the notification service.
func NewSweepScheduler(notifications *vacation.NotificationService) *SweepScheduler {
	return &SweepScheduler{
		Notifications: notifications,
		Interval:      1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Sweep] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.Interval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Sweep] Started with interval: %v", ss.Interval)
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
// Safe to call more than once.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker == nil || ss.stopped {
		return
	}
	ss.stopped = true

	ss.ticker.Stop()
	close(ss.stop)
	ss.wg.Wait()
	log.Println("[Sweep] Stopped")
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start
	ss.sweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) sweep() {
	today := vacation.Today()
	result, err := ss.Notifications.Sweep(context.Background(), today)
	if err != nil {
		log.Printf("[Sweep] Error sweeping for %s: %v", today, err)
		return
	}
	if result.Created > 0 || result.Skipped > 0 {
		log.Printf("[Sweep] Completed for %s: %d created, %d already sent",
			today, result.Created, result.Skipped)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ss *SweepScheduler) RunNow() {
	ss.sweep()
}
