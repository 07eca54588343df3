// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package storelogger

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"github.com/hubtide/hubtide/storage"
)

var mon = monkit.Package()

var id int64

// Logger implements a zap.Logger for storage.Store.
type Logger struct {
	log   *zap.Logger
	store storage.Store
}

// New creates a new Logger with log and store.
func New(log *zap.Logger, store storage.Store) *Logger {
	loggerid := atomic.AddInt64(&id, 1)
	name := strconv.Itoa(int(loggerid))
	return &Logger{log.Named(name), store}
}

// Put adds a value to store.
func (store *Logger) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Put", zap.ByteString("key", key), zap.Int("value length", len(value)), zap.Binary("truncated value", truncate(value)))
	return store.store.Put(ctx, key, value)
}

// PutWithTTL adds a value that expires after ttl.
func (store *Logger) PutWithTTL(ctx context.Context, key storage.Key, value storage.Value, ttl time.Duration) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("PutWithTTL", zap.ByteString("key", key), zap.Duration("ttl", ttl), zap.Int("value length", len(value)), zap.Binary("truncated value", truncate(value)))
	return store.store.PutWithTTL(ctx, key, value, ttl)
}

// Get gets a value to store.
func (store *Logger) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Get", zap.ByteString("key", key))
	return store.store.Get(ctx, key)
}

// Delete deletes key and the value.
func (store *Logger) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Delete", zap.ByteString("key", key))
	return store.store.Delete(ctx, key)
}

// Range iterates over all items in unspecified order.
func (store *Logger) Range(ctx context.Context, fn func(context.Context, storage.Key, storage.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Range")
	return store.store.Range(ctx, func(ctx context.Context, key storage.Key, value storage.Value) error {
		store.log.Debug("  ",
			zap.ByteString("key", key),
			zap.Int("value length", len(value)),
			zap.Binary("truncated value", truncate(value)),
		)
		return fn(ctx, key, value)
	})
}

// IncrBy atomically adds delta to the integer value stored at key.
func (store *Logger) IncrBy(ctx context.Context, key storage.Key, delta int64) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("IncrBy", zap.ByteString("key", key), zap.Int64("delta", delta))
	return store.store.IncrBy(ctx, key, delta)
}

// DecrBy atomically subtracts delta from the integer value stored at key,
// saturating at zero.
func (store *Logger) DecrBy(ctx context.Context, key storage.Key, delta int64) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("DecrBy", zap.ByteString("key", key), zap.Int64("delta", delta))
	return store.store.DecrBy(ctx, key, delta)
}

// Close closes the store.
func (store *Logger) Close() error {
	store.log.Debug("Close")
	return store.store.Close()
}

// CompareAndSwap atomically compares and swaps oldValue with newValue.
func (store *Logger) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("CompareAndSwap", zap.ByteString("key", key),
		zap.Int("old value length", len(oldValue)), zap.Int("new value length", len(newValue)),
		zap.Binary("truncated old value", truncate(oldValue)), zap.Binary("truncated new value", truncate(newValue)))
	return store.store.CompareAndSwap(ctx, key, oldValue, newValue)
}

func truncate(v storage.Value) (t []byte) {
	if len(v)-1 < 10 {
		t = []byte(v)
	} else {
		t = v[:10]
	}
	return t
}
