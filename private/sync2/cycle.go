// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package sync2

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cycle implements a controllable recurring event.
//
// Control methods have no effect after Stop has been called and, Close
// excepted, must not be called after Close.
type Cycle struct {
	interval time.Duration

	ticker  *time.Ticker
	control chan interface{}

	stopsent int32
	runexec  int32

	stopping chan struct{}
	stopped  chan struct{}

	init sync.Once
}

type (
	// cycle control messages
	cyclePause    struct{}
	cycleContinue struct{}
	cycleTrigger  struct {
		done chan struct{}
	}
)

// NewCycle creates a new cycle with the specified interval.
func NewCycle(interval time.Duration) *Cycle {
	cycle := &Cycle{}
	cycle.SetInterval(interval)
	return cycle
}

// SetInterval allows to change the interval before starting.
func (cycle *Cycle) SetInterval(interval time.Duration) {
	cycle.interval = interval
}

// Interval returns the currently configured interval.
func (cycle *Cycle) Interval() time.Duration {
	return cycle.interval
}

func (cycle *Cycle) initialize() {
	cycle.init.Do(func() {
		cycle.stopped = make(chan struct{})
		cycle.stopping = make(chan struct{})
		cycle.control = make(chan interface{})
	})
}

// sendControl sends a control message.
func (cycle *Cycle) sendControl(message interface{}) {
	cycle.initialize()
	select {
	case cycle.control <- message:
	case <-cycle.stopping:
	}
}

// Run runs the specified function immediately and then on every tick.
// It stops when fn returns an error, the context is canceled or Stop is
// called. Run must be called at most once.
func (cycle *Cycle) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	atomic.StoreInt32(&cycle.runexec, 1)
	cycle.initialize()
	defer close(cycle.stopped)

	currentInterval := cycle.interval

	cycle.ticker = time.NewTicker(currentInterval)
	defer cycle.ticker.Stop()

	if err := fn(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-cycle.ticker.C:
			// trigger the function
			if err := fn(ctx); err != nil {
				return err
			}

		case message := <-cycle.control:
			// handle control messages

			switch message := message.(type) {
			case time.Duration:
				currentInterval = message
				cycle.ticker.Stop()
				cycle.ticker = time.NewTicker(currentInterval)

			case cyclePause:
				cycle.ticker.Stop()
				// ensure we don't have ticks left
				select {
				case <-cycle.ticker.C:
				default:
				}

			case cycleContinue:
				cycle.ticker.Stop()
				cycle.ticker = time.NewTicker(currentInterval)

			case cycleTrigger:
				// trigger the function
				if err := fn(ctx); err != nil {
					return err
				}
				if message.done != nil {
					message.done <- struct{}{}
				}
			}

		case <-cycle.stopping:
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop stops the cycle permanently. It is safe to call before and
// concurrently with Run.
func (cycle *Cycle) Stop() {
	cycle.initialize()
	if atomic.CompareAndSwapInt32(&cycle.stopsent, 0, 1) {
		close(cycle.stopping)
	}
}

// Close stops the cycle and waits for a started Run to return.
// It must not be called concurrently with itself.
func (cycle *Cycle) Close() {
	cycle.Stop()
	if atomic.LoadInt32(&cycle.runexec) == 1 {
		<-cycle.stopped
	}
}

// ChangeInterval allows to change the ticker interval after it has started.
func (cycle *Cycle) ChangeInterval(interval time.Duration) {
	cycle.sendControl(interval)
}

// Pause pauses the cycle.
func (cycle *Cycle) Pause() {
	cycle.sendControl(cyclePause{})
}

// Restart restarts the ticker from 0.
func (cycle *Cycle) Restart() {
	cycle.sendControl(cycleContinue{})
}

// Trigger ensures that the loop is done at least once.
// If it's currently running it waits for the previous to complete and then runs.
func (cycle *Cycle) Trigger() {
	cycle.sendControl(cycleTrigger{})
}

// TriggerWait ensures that the loop is done at least once and waits for completion.
// If it's currently running it waits for the previous to complete and then runs.
func (cycle *Cycle) TriggerWait() {
	done := make(chan struct{})
	cycle.sendControl(cycleTrigger{done})
	select {
	case <-done:
	case <-cycle.stopped:
	}
}
