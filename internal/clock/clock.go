// Package clock implements the ClockDriver: a fixed-interval,
// interval-aligned tick source that drives one trading cycle at a time,
// recovers from a cycle that overruns its interval, and never runs two
// cycles concurrently.
//
// Grounded on original_source/workspace/features/trading_loop/scheduler.py's
// TradingScheduler: the Idle/Running/Paused/Stopped/Error state machine, the
// interval-alignment-to-UTC-midnight calculation, the "behind schedule"
// drift recovery, and the retry-then-recover cycle-failure handling are all
// carried over from it exactly. Go idiom (goroutine + context.Context +
// sync.RWMutex-guarded state) follows the teacher's cmd/bitrader/main.go
// shutdown wiring and internal/exec/executor.go's guarded-struct style.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the ClockDriver lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// CycleFunc is the callback invoked once per tick. A returned error counts
// as a failed cycle; it does not halt scheduling.
type CycleFunc func(ctx context.Context) error

// Status is a snapshot of the driver's condition, mirroring
// TradingScheduler.get_status().
type Status struct {
	State         State
	CycleCount    int
	ErrorCount    int
	LastCycleTime time.Time
	NextCycleTime time.Time
}

// Driver is the ClockDriver.
type Driver struct {
	interval   time.Duration
	align      bool
	maxRetries int
	retryDelay time.Duration
	onCycle    CycleFunc

	mu    sync.RWMutex
	state State
	cycleCount int
	errorCount int
	lastCycle  time.Time
	nextCycle  time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Driver. interval is the tick period (default 180s per
// spec); align, when true, delays the first tick to the next wall-clock
// multiple of interval since UTC midnight. maxRetries/retryDelay bound the
// in-cycle retry loop before a failure is recorded and scheduling continues.
func New(interval time.Duration, align bool, maxRetries int, retryDelay time.Duration, onCycle CycleFunc) *Driver {
	return &Driver{
		interval:   interval,
		align:      align,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		onCycle:    onCycle,
		state:      StateIdle,
	}
}

// Start begins ticking in a background goroutine. Starting an already
// running driver is a no-op, matching the teacher's idempotent start guard.
func (d *Driver) Start() {
	d.mu.Lock()
	if d.state == StateRunning {
		d.mu.Unlock()
		log.Warn().Msg("clock driver already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.state = StateRunning
	d.cycleCount = 0
	d.errorCount = 0
	now := time.Now().UTC()
	if d.align {
		d.nextCycle = nextAlignedTime(now, d.interval)
	} else {
		d.nextCycle = now
	}
	d.done = make(chan struct{})
	next := d.nextCycle
	done := d.done
	d.mu.Unlock()

	log.Info().Dur("interval", d.interval).Bool("align", d.align).Time("first_cycle", next).
		Msg("clock driver starting")

	go d.loop(ctx, done)
}

// Stop halts the driver. graceful=true waits up to 30s for an in-flight
// cycle to finish before forcing cancellation; graceful=false cancels
// immediately.
func (d *Driver) Stop(graceful bool) {
	d.mu.Lock()
	if d.state != StateRunning && d.state != StatePaused && d.state != StateError {
		d.mu.Unlock()
		return
	}
	d.state = StateStopped
	cancel := d.cancel
	done := d.done
	d.mu.Unlock()

	log.Info().Bool("graceful", graceful).Msg("stopping clock driver")

	if !graceful {
		cancel()
		<-done
		return
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("graceful shutdown timeout, forcing stop")
		cancel()
		<-done
	}
}

// Pause suspends cycle execution without losing accumulated counters.
func (d *Driver) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateRunning {
		d.state = StatePaused
		log.Info().Msg("clock driver paused")
	}
}

// Resume resumes a paused driver, rescheduling the next tick one interval
// out from now.
func (d *Driver) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StatePaused {
		d.state = StateRunning
		d.nextCycle = time.Now().UTC().Add(d.interval)
		log.Info().Msg("clock driver resumed")
	}
}

// Status returns a snapshot of the driver's current condition.
func (d *Driver) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Status{
		State:         d.state,
		CycleCount:    d.cycleCount,
		ErrorCount:    d.errorCount,
		LastCycleTime: d.lastCycle,
		NextCycleTime: d.nextCycle,
	}
}

func (d *Driver) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	d.mu.RLock()
	next := d.nextCycle
	d.mu.RUnlock()
	if wait := time.Until(next); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}

	pausePoll := 1 * time.Second
	if d.interval < pausePoll {
		pausePoll = d.interval
	}

	for {
		d.mu.RLock()
		state := d.state
		next = d.nextCycle
		d.mu.RUnlock()

		switch state {
		case StateStopped:
			return
		case StatePaused:
			select {
			case <-time.After(pausePoll):
				continue
			case <-ctx.Done():
				return
			}
		}

		if wait := time.Until(next); wait > 0 {
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		cycleStart := time.Now().UTC()
		d.mu.Lock()
		d.cycleCount++
		count := d.cycleCount
		d.mu.Unlock()

		log.Info().Int("cycle", count).Msg("trading cycle start")

		if err := d.executeWithRetry(ctx); err != nil {
			d.mu.Lock()
			d.errorCount++
			d.state = StateError
			d.mu.Unlock()

			log.Error().Err(err).Int("cycle", count).Msg("trading cycle failed")

			select {
			case <-time.After(d.retryDelay):
			case <-ctx.Done():
				return
			}

			d.mu.Lock()
			if d.state == StateError {
				d.state = StateRunning
			}
			d.mu.Unlock()
		} else {
			d.mu.Lock()
			d.lastCycle = cycleStart
			d.mu.Unlock()
		}

		log.Info().Int("cycle", count).Dur("duration", time.Since(cycleStart)).Msg("trading cycle end")

		nextTick := cycleStart.Add(d.interval)
		wait := time.Until(nextTick)
		if wait > 0 {
			d.mu.Lock()
			d.nextCycle = nextTick
			d.mu.Unlock()
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}

		log.Warn().Int("cycle", count).Dur("behind_by", -wait).Msg("trading cycle behind schedule")
		d.mu.Lock()
		d.nextCycle = nextAlignedTime(time.Now().UTC(), d.interval)
		d.mu.Unlock()
	}
}

// executeWithRetry runs onCycle up to maxRetries times in total (the first
// attempt plus maxRetries-1 retries) with retryDelay between attempts,
// matching _execute_cycle_with_retry.
func (d *Driver) executeWithRetry(ctx context.Context) error {
	if d.onCycle == nil {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			log.Warn().Int("attempt", attempt+1).Int("max_retries", d.maxRetries).
				Err(lastErr).Msg("retrying trading cycle")
		}
		if err := d.onCycle(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// nextAlignedTime returns the next wall-clock multiple of interval since UTC
// midnight strictly after now, matching _calculate_next_aligned_time: for a
// 180s interval, 10:01:30 aligns to 10:03:00 and 10:03:00 itself aligns to
// 10:06:00.
func nextAlignedTime(now time.Time, interval time.Duration) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sinceMidnight := now.Sub(midnight)
	intervalsPassed := sinceMidnight / interval
	nextOffset := (intervalsPassed + 1) * interval
	return midnight.Add(nextOffset)
}
