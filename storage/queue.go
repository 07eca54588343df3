// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package storage

import (
	"context"
	"time"

	"github.com/zeebo/errs"
)

// ErrEmptyQueue is returned by Dequeue when there is no item ready.
var ErrEmptyQueue = errs.Class("empty queue")

// Queue is a FIFO transport for opaque values with optional delayed
// visibility. An item enqueued with a future notBefore stays invisible
// to Dequeue until that time has passed.
//
// Delivery is at-least-once: consumers that crash between Dequeue and
// completing their work lose the item unless they re-enqueue it first.
type Queue interface {
	// Enqueue adds an item. A zero or past notBefore makes it visible immediately.
	Enqueue(ctx context.Context, value Value, notBefore time.Time) error
	// Dequeue removes and returns the oldest visible item.
	// It returns ErrEmptyQueue when nothing is ready.
	Dequeue(ctx context.Context) (Value, error)
	// Close closes the queue.
	Close() error
}
