// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package sync2

import (
	"context"
	"sync"
)

// Fence allows to wait for something to happen.
type Fence struct {
	setup   sync.Once
	release sync.Once
	done    chan struct{}
}

// init sets up the initial lock into wait.
func (fence *Fence) init() {
	fence.setup.Do(func() {
		fence.done = make(chan struct{})
	})
}

// Release releases everyone waiting on the fence.
func (fence *Fence) Release() {
	fence.init()
	fence.release.Do(func() { close(fence.done) })
}

// Wait waits for the fence to be released, returning false when the
// context is canceled first.
func (fence *Fence) Wait(ctx context.Context) bool {
	fence.init()
	select {
	case <-fence.done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Released returns whether the fence has been released.
func (fence *Fence) Released() bool {
	fence.init()
	select {
	case <-fence.done:
		return true
	default:
		return false
	}
}

// Done returns the channel that closes on release.
func (fence *Fence) Done() chan struct{} {
	fence.init()
	return fence.done
}
