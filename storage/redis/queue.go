// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hubtide/hubtide/storage"
)

// Queue is a redis backed storage.Queue. Ready items live in a list,
// delayed items in a sorted set scored by their visibility time. Due
// items are promoted atomically before every pop so that concurrent
// consumers never deliver an item twice.
type Queue struct {
	client *Client
	name   string
	now    func() time.Time
}

// promoteScript moves due members from the delayed set onto the ready list.
const promoteScript = `
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for i = 1, #due do
	redis.call('LPUSH', KEYS[1], due[i])
	redis.call('ZREM', KEYS[2], due[i])
end
return #due
`

// NewQueue returns a Queue named name on top of an open redis client.
func NewQueue(client *Client, name string) *Queue {
	return &Queue{client: client, name: name, now: time.Now}
}

// SetNow overrides the clock used for delayed visibility. Tests only.
func (queue *Queue) SetNow(now func() time.Time) { queue.now = now }

// OpenQueue connects to the redis at address and returns a Queue named name.
func OpenQueue(ctx context.Context, address, name string) (*Queue, error) {
	client, err := OpenClientFrom(ctx, address)
	if err != nil {
		return nil, err
	}
	return NewQueue(client, name), nil
}

func (queue *Queue) readyKey() string   { return "queue:" + queue.name }
func (queue *Queue) delayedKey() string { return "queue:" + queue.name + ":delayed" }

// Enqueue adds a FIFO element. A future notBefore parks it in the
// delayed set until due.
func (queue *Queue) Enqueue(ctx context.Context, value storage.Value, notBefore time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !notBefore.IsZero() && notBefore.After(queue.now()) {
		err := queue.client.db.ZAdd(ctx, queue.delayedKey(), redis.Z{
			Score:  float64(notBefore.Unix()),
			Member: []byte(value),
		}).Err()
		if err != nil {
			return Error.New("enqueue delayed error: %v", err)
		}
		return nil
	}

	if err := queue.client.db.LPush(ctx, queue.readyKey(), []byte(value)).Err(); err != nil {
		return Error.New("enqueue error: %v", err)
	}
	return nil
}

// Dequeue removes the oldest visible element. It returns
// storage.ErrEmptyQueue when nothing is ready yet.
func (queue *Queue) Dequeue(ctx context.Context) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := queue.promote(ctx); err != nil {
		return nil, err
	}

	out, err := queue.client.db.RPop(ctx, queue.readyKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrEmptyQueue.New("")
		}
		return nil, Error.New("dequeue error: %v", err)
	}
	return storage.Value(out), nil
}

// Len reports how many items are ready, excluding delayed ones.
func (queue *Queue) Len(ctx context.Context) (int64, error) {
	n, err := queue.client.db.LLen(ctx, queue.readyKey()).Result()
	if err != nil {
		return 0, Error.New("len error: %v", err)
	}
	return n, nil
}

func (queue *Queue) promote(ctx context.Context) error {
	_, err := queue.client.Eval(ctx, promoteScript,
		[]string{queue.readyKey(), queue.delayedKey()},
		queue.now().Unix())
	return err
}

// Close closes the underlying redis client.
func (queue *Queue) Close() error {
	return queue.client.Close()
}
