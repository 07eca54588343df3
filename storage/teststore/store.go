// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package teststore

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hubtide/hubtide/storage"
)

// Client implements an in-memory key value store. Expired entries are
// removed lazily, on the read that notices them.
type Client struct {
	mu sync.Mutex

	items   storage.Items
	expires map[string]time.Time
	now     func() time.Time

	CallCount struct {
		Get            int
		Put            int
		Delete         int
		Range          int
		CompareAndSwap int
		IncrBy         int
		DecrBy         int
		Close          int
	}
}

// New creates a new in-memory key-value store.
func New() *Client {
	return &Client{
		expires: map[string]time.Time{},
		now:     time.Now,
	}
}

// SetNow overrides the clock used for TTL expiry. Tests only.
func (store *Client) SetNow(now func() time.Time) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.now = now
}

// indexOf finds index of key or where it could be inserted.
func (store *Client) indexOf(key storage.Key) (int, bool) {
	i := sort.Search(len(store.items), func(k int) bool {
		return !store.items[k].Key.Less(key)
	})

	if i >= len(store.items) {
		return i, false
	}
	return i, store.items[i].Key.Equal(key)
}

func cloneKey(key storage.Key) storage.Key         { return append(storage.Key{}, key...) }
func cloneValue(value storage.Value) storage.Value { return append(storage.Value{}, value...) }

// expired reports whether key has a passed deadline, assumes lock held.
func (store *Client) expired(key storage.Key) bool {
	deadline, ok := store.expires[string(key)]
	return ok && !store.now().Before(deadline)
}

// deleteLocked removes key if present, assumes lock held.
func (store *Client) deleteLocked(key storage.Key) bool {
	keyIndex, found := store.indexOf(key)
	if !found {
		return false
	}
	copy(store.items[keyIndex:], store.items[keyIndex+1:])
	store.items = store.items[:len(store.items)-1]
	delete(store.expires, string(key))
	return true
}

func (store *Client) putLocked(key storage.Key, value storage.Value, ttl time.Duration) {
	if ttl > 0 {
		store.expires[string(key)] = store.now().Add(ttl)
	} else {
		delete(store.expires, string(key))
	}

	keyIndex, found := store.indexOf(key)
	if found {
		kv := &store.items[keyIndex]
		kv.Value = cloneValue(value)
		return
	}

	store.items = append(store.items, storage.Item{})
	copy(store.items[keyIndex+1:], store.items[keyIndex:])
	store.items[keyIndex] = storage.Item{
		Key:   cloneKey(key),
		Value: cloneValue(value),
	}
}

func (store *Client) getLocked(key storage.Key) (storage.Value, error) {
	if store.expired(key) {
		store.deleteLocked(key)
	}
	keyIndex, found := store.indexOf(key)
	if !found {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	return cloneValue(store.items[keyIndex].Value), nil
}

// setValueLocked replaces the value without touching the expiry deadline,
// assumes lock held.
func (store *Client) setValueLocked(key storage.Key, value storage.Value) {
	keyIndex, found := store.indexOf(key)
	if found {
		store.items[keyIndex].Value = cloneValue(value)
		return
	}
	store.items = append(store.items, storage.Item{})
	copy(store.items[keyIndex+1:], store.items[keyIndex:])
	store.items[keyIndex] = storage.Item{
		Key:   cloneKey(key),
		Value: cloneValue(value),
	}
}

// counterLocked parses the current integer value of key, assumes lock held.
// A missing key counts as zero.
func (store *Client) counterLocked(key storage.Key) (int64, error) {
	current, err := store.getLocked(key)
	if storage.ErrKeyNotFound.Has(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseInt(string(current), 10, 64)
	if err != nil {
		return 0, storage.ErrNotNumeric.New("%q", key)
	}
	return parsed, nil
}

// Put adds a value to store.
func (store *Client) Put(ctx context.Context, key storage.Key, value storage.Value) error {
	return store.PutWithTTL(ctx, key, value, 0)
}

// PutWithTTL adds a value that expires after ttl.
func (store *Client) PutWithTTL(ctx context.Context, key storage.Key, value storage.Value, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Put++
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	store.putLocked(key, value, ttl)
	return nil
}

// Get gets a value from store.
func (store *Client) Get(ctx context.Context, key storage.Key) (storage.Value, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Get++
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}
	return store.getLocked(key)
}

// Delete deletes key and the value.
func (store *Client) Delete(ctx context.Context, key storage.Key) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Delete++
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	store.deleteLocked(key)
	return nil
}

// Range iterates over all items in unspecified order.
func (store *Client) Range(ctx context.Context, fn func(context.Context, storage.Key, storage.Value) error) error {
	store.mu.Lock()
	store.CallCount.Range++

	var snapshot storage.Items
	for _, item := range store.items {
		if store.expired(item.Key) {
			continue
		}
		snapshot = append(snapshot, storage.Item{
			Key:   cloneKey(item.Key),
			Value: cloneValue(item.Value),
		})
	}
	store.mu.Unlock()

	for _, item := range snapshot {
		if err := fn(ctx, item.Key, item.Value); err != nil {
			return err
		}
	}
	return nil
}

// IncrBy atomically adds delta to the integer value stored at key.
func (store *Client) IncrBy(ctx context.Context, key storage.Key, delta int64) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.IncrBy++
	if key.IsZero() {
		return 0, storage.ErrEmptyKey.New("")
	}

	current, err := store.counterLocked(key)
	if err != nil {
		return 0, err
	}
	next := current + delta
	store.setValueLocked(key, storage.Value(strconv.FormatInt(next, 10)))
	return next, nil
}

// DecrBy atomically subtracts delta from the integer value stored at key,
// saturating at zero.
func (store *Client) DecrBy(ctx context.Context, key storage.Key, delta int64) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.DecrBy++
	if key.IsZero() {
		return 0, storage.ErrEmptyKey.New("")
	}

	current, err := store.counterLocked(key)
	if err != nil {
		return 0, err
	}
	next := current - delta
	if next < 0 {
		next = 0
	}
	store.setValueLocked(key, storage.Value(strconv.FormatInt(next, 10)))
	return next, nil
}

// CompareAndSwap atomically compares and swaps oldValue with newValue.
func (store *Client) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.CompareAndSwap++
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	current, err := store.getLocked(key)
	if storage.ErrKeyNotFound.Has(err) {
		if oldValue != nil {
			return storage.ErrKeyNotFound.New("%q", key)
		}
		if newValue == nil {
			return nil
		}
		store.putLocked(key, newValue, 0)
		return nil
	}
	if err != nil {
		return err
	}

	if !bytes.Equal(current, oldValue) {
		return storage.ErrValueChanged.New("%q", key)
	}

	if newValue == nil {
		store.deleteLocked(key)
		return nil
	}
	store.putLocked(key, newValue, 0)
	return nil
}

// Close closes the store.
func (store *Client) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Close++
	return nil
}
