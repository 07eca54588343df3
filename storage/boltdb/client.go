// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	bolt "go.etcd.io/bbolt"

	"github.com/hubtide/hubtide/storage"
)

var (
	// Error is a boltdb error.
	Error = errs.Class("boltdb")

	mon = monkit.Package()
)

var defaultTimeout = 1 * time.Second

const (
	// fileMode sets permissions so owner can read and write.
	fileMode = 0600

	itemsBucket   = "items"
	expiresBucket = "expires"
)

// Client is a boltdb backed storage.Store for single-node deployments.
// Expired entries are removed lazily, on the read that notices them.
type Client struct {
	db   *bolt.DB
	Path string

	now func() time.Time
}

// New instantiates a new boltdb client at path.
func New(path string) (*Client, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(itemsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(expiresBucket))
		return err
	})
	if err != nil {
		return nil, Error.Wrap(errs.Combine(err, db.Close()))
	}

	return &Client{db: db, Path: path, now: time.Now}, nil
}

// SetNow overrides the clock used for TTL expiry. Tests only.
func (client *Client) SetNow(now func() time.Time) { client.now = now }

func encodeDeadline(t time.Time) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano()))
	return buf[:]
}

func decodeDeadline(raw []byte) (time.Time, bool) {
	if len(raw) != 8 {
		return time.Time{}, false
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(raw))), true
}

// expired reports whether the key's deadline, if any, has passed.
func (client *Client) expired(tx *bolt.Tx, key storage.Key) bool {
	raw := tx.Bucket([]byte(expiresBucket)).Get(key)
	if raw == nil {
		return false
	}
	deadline, ok := decodeDeadline(raw)
	return ok && !client.now().Before(deadline)
}

func (client *Client) putTx(tx *bolt.Tx, key storage.Key, value storage.Value, ttl time.Duration) error {
	expires := tx.Bucket([]byte(expiresBucket))
	if ttl > 0 {
		if err := expires.Put(key, encodeDeadline(client.now().Add(ttl))); err != nil {
			return err
		}
	} else if err := expires.Delete(key); err != nil {
		return err
	}
	return tx.Bucket([]byte(itemsBucket)).Put(key, value)
}

func (client *Client) deleteTx(tx *bolt.Tx, key storage.Key) error {
	if err := tx.Bucket([]byte(expiresBucket)).Delete(key); err != nil {
		return err
	}
	return tx.Bucket([]byte(itemsBucket)).Delete(key)
}

func (client *Client) getTx(tx *bolt.Tx, key storage.Key) (storage.Value, error) {
	if client.expired(tx, key) {
		if err := client.deleteTx(tx, key); err != nil {
			return nil, err
		}
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	raw := tx.Bucket([]byte(itemsBucket)).Get(key)
	if raw == nil {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	return append(storage.Value{}, raw...), nil
}

// Put adds a value to the provided key.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) error {
	return client.PutWithTTL(ctx, key, value, 0)
}

// PutWithTTL adds a value that expires after ttl.
func (client *Client) PutWithTTL(ctx context.Context, key storage.Key, value storage.Value, ttl time.Duration) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return Error.Wrap(client.db.Update(func(tx *bolt.Tx) error {
		return client.putTx(tx, key, value, ttl)
	}))
}

// Get looks up the provided key.
func (client *Client) Get(ctx context.Context, key storage.Key) (value storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}

	// expiry removal needs a write transaction
	err = client.db.Update(func(tx *bolt.Tx) error {
		value, err = client.getTx(tx, key)
		return err
	})
	if storage.ErrKeyNotFound.Has(err) {
		return nil, err
	}
	return value, Error.Wrap(err)
}

// Delete deletes a key/value pair, for a given key.
func (client *Client) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return Error.Wrap(client.db.Update(func(tx *bolt.Tx) error {
		return client.deleteTx(tx, key)
	}))
}

// Range iterates over all items in unspecified order.
func (client *Client) Range(ctx context.Context, fn func(context.Context, storage.Key, storage.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	return client.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(itemsBucket)).ForEach(func(key, value []byte) error {
			if client.expired(tx, key) {
				return nil
			}
			return fn(ctx, storage.Key(key), storage.Value(value))
		})
	})
}

// counterTx parses the current integer value of key inside tx.
// A missing key counts as zero.
func (client *Client) counterTx(tx *bolt.Tx, key storage.Key) (int64, error) {
	current, err := client.getTx(tx, key)
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

// IncrBy atomically adds delta to the integer value stored at key.
func (client *Client) IncrBy(ctx context.Context, key storage.Key, delta int64) (next int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return 0, storage.ErrEmptyKey.New("")
	}

	err = client.db.Update(func(tx *bolt.Tx) error {
		current, err := client.counterTx(tx, key)
		if err != nil {
			return err
		}
		next = current + delta
		return tx.Bucket([]byte(itemsBucket)).Put(key, []byte(strconv.FormatInt(next, 10)))
	})
	return next, err
}

// DecrBy atomically subtracts delta from the integer value stored at key,
// saturating at zero.
func (client *Client) DecrBy(ctx context.Context, key storage.Key, delta int64) (next int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return 0, storage.ErrEmptyKey.New("")
	}

	err = client.db.Update(func(tx *bolt.Tx) error {
		current, err := client.counterTx(tx, key)
		if err != nil {
			return err
		}
		next = current - delta
		if next < 0 {
			next = 0
		}
		return tx.Bucket([]byte(itemsBucket)).Put(key, []byte(strconv.FormatInt(next, 10)))
	})
	return next, err
}

// CompareAndSwap atomically compares and swaps oldValue with newValue.
func (client *Client) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	return client.db.Update(func(tx *bolt.Tx) error {
		current, err := client.getTx(tx, key)
		if storage.ErrKeyNotFound.Has(err) {
			if oldValue != nil {
				return storage.ErrKeyNotFound.New("%q", key)
			}
			if newValue == nil {
				return nil
			}
			return Error.Wrap(client.putTx(tx, key, newValue, 0))
		}
		if err != nil {
			return err
		}

		if !bytes.Equal(current, oldValue) {
			return storage.ErrValueChanged.New("%q", key)
		}

		if newValue == nil {
			return Error.Wrap(client.deleteTx(tx, key))
		}
		return Error.Wrap(client.putTx(tx, key, newValue, 0))
	})
}

// Close closes a boltdb client.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}
