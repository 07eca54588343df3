// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package testqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hubtide/hubtide/storage"
)

// Queue implements an in-memory storage.Queue with delayed visibility.
type Queue struct {
	mu      sync.Mutex
	ready   []storage.Value
	delayed []delayedItem
	now     func() time.Time

	CallCount struct {
		Enqueue int
		Dequeue int
		Close   int
	}
}

type delayedItem struct {
	value storage.Value
	due   time.Time
}

// New creates an empty in-memory queue.
func New() *Queue {
	return &Queue{now: time.Now}
}

// SetNow overrides the clock used for delayed visibility. Tests only.
func (queue *Queue) SetNow(now func() time.Time) {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	queue.now = now
}

// Enqueue adds a FIFO element, delayed until notBefore when it is in the future.
func (queue *Queue) Enqueue(ctx context.Context, value storage.Value, notBefore time.Time) error {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	queue.CallCount.Enqueue++

	value = append(storage.Value{}, value...)
	if !notBefore.IsZero() && notBefore.After(queue.now()) {
		queue.delayed = append(queue.delayed, delayedItem{value: value, due: notBefore})
		return nil
	}
	queue.ready = append(queue.ready, value)
	return nil
}

// Dequeue removes the oldest visible element, or storage.ErrEmptyQueue.
func (queue *Queue) Dequeue(ctx context.Context) (storage.Value, error) {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	queue.CallCount.Dequeue++
	queue.promoteLocked()

	if len(queue.ready) == 0 {
		return nil, storage.ErrEmptyQueue.New("")
	}
	out := queue.ready[0]
	queue.ready = queue.ready[1:]
	return out, nil
}

// Len reports ready plus delayed items.
func (queue *Queue) Len() int {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	return len(queue.ready) + len(queue.delayed)
}

// promoteLocked moves due delayed items onto the ready slice in due order.
func (queue *Queue) promoteLocked() {
	if len(queue.delayed) == 0 {
		return
	}
	now := queue.now()

	var due []delayedItem
	var still []delayedItem
	for _, item := range queue.delayed {
		if item.due.After(now) {
			still = append(still, item)
		} else {
			due = append(due, item)
		}
	}
	sort.SliceStable(due, func(i, k int) bool { return due[i].due.Before(due[k].due) })

	for _, item := range due {
		queue.ready = append(queue.ready, item.value)
	}
	queue.delayed = still
}

// Close closes the queue.
func (queue *Queue) Close() error {
	queue.mu.Lock()
	defer queue.mu.Unlock()
	queue.CallCount.Close++
	return nil
}
