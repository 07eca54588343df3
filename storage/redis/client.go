// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package redis

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/hubtide/hubtide/storage"
)

var (
	// Error is a redis error.
	Error = errs.Class("redis")

	mon = monkit.Package()
)

// Client is the entrypoint into Redis.
type Client struct {
	db *redis.Client
}

// OpenClient returns a configured Client instance, verifying a successful connection to redis.
func OpenClient(ctx context.Context, address, password string, db int) (*Client, error) {
	client := &Client{
		db: redis.NewClient(&redis.Options{
			Addr:     address,
			Password: password,
			DB:       db,
		}),
	}

	// ping here to verify we are able to connect to redis with the initialized client.
	if err := client.db.Ping(ctx).Err(); err != nil {
		return nil, Error.New("ping failed: %v", err)
	}

	return client, nil
}

// OpenClientFrom returns a configured Client instance from a redis address, verifying a successful connection to redis.
func OpenClientFrom(ctx context.Context, address string) (*Client, error) {
	redisurl, err := url.Parse(address)
	if err != nil {
		return nil, err
	}

	if redisurl.Scheme != "redis" {
		return nil, Error.New("not a redis:// formatted address")
	}

	q := redisurl.Query()

	db := 0
	if dbs := q.Get("db"); dbs != "" {
		db, err = strconv.Atoi(dbs)
		if err != nil {
			return nil, err
		}
	}

	password := q.Get("password")
	if user := redisurl.User; password == "" && user != nil {
		password, _ = user.Password()
	}

	return OpenClient(ctx, redisurl.Host, password, db)
}

// Get looks up the provided key from redis returning either an error or the result.
func (client *Client) Get(ctx context.Context, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, storage.ErrEmptyKey.New("")
	}
	return get(ctx, client.db, key)
}

// Put adds a value to the provided key in redis, returning an error on failure.
func (client *Client) Put(ctx context.Context, key storage.Key, value storage.Value) (err error) {
	return client.PutWithTTL(ctx, key, value, 0)
}

// PutWithTTL adds a value to the provided key in redis with an expiration.
// A zero ttl stores the value without expiry.
func (client *Client) PutWithTTL(ctx context.Context, key storage.Key, value storage.Value, ttl time.Duration) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return put(ctx, client.db, key, value, ttl)
}

// IncrBy atomically adds delta to the integer value stored at key and
// returns the result. A missing key counts as zero.
func (client *Client) IncrBy(ctx context.Context, key storage.Key, delta int64) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return 0, storage.ErrEmptyKey.New("")
	}
	next, err := client.db.IncrBy(ctx, key.String(), delta).Result()
	if err != nil {
		if strings.Contains(err.Error(), "not an integer") {
			return 0, storage.ErrNotNumeric.New("%q", key)
		}
		return 0, Error.New("incrby error: %v", err)
	}
	return next, nil
}

// decrScript subtracts without going negative, keeping any TTL intact.
const decrScript = `
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur == nil then
	return redis.error_reply('value is not an integer')
end
local next = cur - tonumber(ARGV[1])
if next < 0 then
	next = 0
end
redis.call('SET', KEYS[1], next, 'KEEPTTL')
return next
`

// DecrBy atomically subtracts delta from the integer value stored at key,
// saturating at zero. The subtraction runs as a server-side script so
// concurrent processes never drive the value negative.
func (client *Client) DecrBy(ctx context.Context, key storage.Key, delta int64) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return 0, storage.ErrEmptyKey.New("")
	}
	res, err := client.Eval(ctx, decrScript, []string{key.String()}, delta)
	if err != nil {
		if strings.Contains(err.Error(), "not an integer") {
			return 0, storage.ErrNotNumeric.New("%q", key)
		}
		return 0, err
	}
	next, ok := res.(int64)
	if !ok {
		return 0, Error.New("decrby: unexpected reply %T", res)
	}
	return next, nil
}

// Eval evaluates a Lua 5.1 script on the redis server. Key arguments are
// accessible from Lua through the KEYS global as a one-based array.
func (client *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (_ interface{}, err error) {
	defer mon.Task()(&ctx)(&err)
	res, err := client.db.Eval(ctx, script, keys, args...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, Error.New("eval error: %v", err)
	}
	return res, nil
}

// Delete deletes a key/value pair from redis, for a given the key.
func (client *Client) Delete(ctx context.Context, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}
	return delete(ctx, client.db, key)
}

// FlushDB deletes all keys in the currently selected DB.
func (client *Client) FlushDB(ctx context.Context) error {
	_, err := client.db.FlushDB(ctx).Result()
	return err
}

// Close closes a redis client.
func (client *Client) Close() error {
	return client.db.Close()
}

// Range iterates over all items in unspecified order.
func (client *Client) Range(ctx context.Context, fn func(context.Context, storage.Key, storage.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	it := client.db.Scan(ctx, 0, "", 0).Iterator()

	var lastKey string
	var lastOk bool
	for it.Next(ctx) {
		key := it.Val()
		// redis may return duplicates
		if lastOk && key == lastKey {
			continue
		}
		lastKey, lastOk = key, true

		value, err := get(ctx, client.db, storage.Key(key))
		if err != nil {
			// deleted or expired during the scan
			if storage.ErrKeyNotFound.Has(err) {
				continue
			}
			return Error.Wrap(err)
		}

		if err := fn(ctx, storage.Key(key), value); err != nil {
			return err
		}
	}

	return Error.Wrap(it.Err())
}

// CompareAndSwap atomically compares and swaps oldValue with newValue.
func (client *Client) CompareAndSwap(ctx context.Context, key storage.Key, oldValue, newValue storage.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return storage.ErrEmptyKey.New("")
	}

	txf := func(tx *redis.Tx) error {
		value, err := get(ctx, tx, key)
		if storage.ErrKeyNotFound.Has(err) {
			if oldValue != nil {
				return storage.ErrKeyNotFound.New("%q", key)
			}

			if newValue == nil {
				return nil
			}

			// runs only if the watched keys remain unchanged
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return put(ctx, pipe, key, newValue, 0)
			})
			return err
		}
		if err != nil {
			return err
		}

		if !bytes.Equal(value, oldValue) {
			return storage.ErrValueChanged.New("%q", key)
		}

		// runs only if the watched keys remain unchanged
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if newValue == nil {
				return delete(ctx, pipe, key)
			}
			return put(ctx, pipe, key, newValue, 0)
		})

		return err
	}

	err = client.db.Watch(ctx, txf, key.String())
	if errors.Is(err, redis.TxFailedErr) {
		return storage.ErrValueChanged.New("%q", key)
	}
	return Error.Wrap(err)
}

func get(ctx context.Context, cmdable redis.Cmdable, key storage.Key) (_ storage.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	value, err := cmdable.Get(ctx, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrKeyNotFound.New("%q", key)
	}
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return nil, Error.New("get error: %v", err)
	}
	return value, errs.Wrap(err)
}

func put(ctx context.Context, cmdable redis.Cmdable, key storage.Key, value storage.Value, ttl time.Duration) (err error) {
	defer mon.Task()(&ctx)(&err)
	err = cmdable.Set(ctx, key.String(), []byte(value), ttl).Err()
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return Error.New("put error: %v", err)
	}
	return errs.Wrap(err)
}

func delete(ctx context.Context, cmdable redis.Cmdable, key storage.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	err = cmdable.Del(ctx, key.String()).Err()
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return Error.New("delete error: %v", err)
	}
	return errs.Wrap(err)
}
