// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package ratelimit coordinates the shared GitHub API budget across every
// process that polls with the same credentials.
//
// The most recent rate limit headers are kept in the shared key/value store
// under one record per resource class. Before an API call each process
// consults the record and sleeps past the reset timestamp when the budget
// is exhausted, so the fleet as a whole stays inside the limit.
package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hubtide/hubtide/private/sync2"
	"github.com/hubtide/hubtide/storage"
)

var (
	// Error is the default error class for the ratelimit package.
	Error = errs.Class("ratelimit")

	mon = monkit.Package()
)

// minRecordTTL keeps records alive long enough to survive clock skew
// between processes and the API.
const minRecordTTL = time.Minute

// Config is the config struct for the rate limit coordinator.
type Config struct {
	Buffer   time.Duration `help:"extra wait added past the reset timestamp before resuming" default:"5s"`
	MinSleep time.Duration `help:"shortest wait when the budget is exhausted" default:"1s"`
}

// Record mirrors the rate limit headers of the most recent API response.
// Reset is a unix timestamp in seconds, as reported by the API.
type Record struct {
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// Coordinator reads and writes the shared rate limit state.
//
// architecture: Service
type Coordinator struct {
	log    *zap.Logger
	store  storage.Store
	config Config

	nowFn func() time.Time
}

// NewCoordinator constructs a coordinator on top of the shared store.
func NewCoordinator(log *zap.Logger, store storage.Store, config Config) *Coordinator {
	return &Coordinator{
		log:    log,
		store:  store,
		config: config,
	}
}

// SetNow overrides the time source. Only used from tests.
func (coordinator *Coordinator) SetNow(now func() time.Time) {
	coordinator.nowFn = now
}

func (coordinator *Coordinator) now() time.Time {
	if coordinator.nowFn != nil {
		return coordinator.nowFn()
	}
	return time.Now()
}

func recordKey(resource string) storage.Key {
	return storage.Key("rate_limit:" + resource)
}

func budgetKey(resource string) storage.Key {
	return storage.Key("rate_limit:" + resource + ":budget")
}

// CheckLimit blocks until the resource has budget again. With no shared
// state, or remaining budget, it returns immediately. When the budget is
// exhausted it sleeps until shortly after the recorded reset timestamp and
// then drops the stale record. The only error it returns is a cancelled
// context.
func (coordinator *Coordinator) CheckLimit(ctx context.Context, resource string) (err error) {
	defer mon.Task()(&ctx)(&err)

	value, err := coordinator.store.Get(ctx, recordKey(resource))
	if storage.ErrKeyNotFound.Has(err) {
		coordinator.log.Debug("no shared rate limit state",
			zap.String("resource", resource))
		return nil
	}
	if err != nil {
		return Error.Wrap(err)
	}

	var record Record
	if err := json.Unmarshal(value, &record); err != nil {
		coordinator.log.Warn("dropping malformed rate limit state",
			zap.String("resource", resource),
			zap.Error(err))
		_ = coordinator.store.Delete(ctx, recordKey(resource))
		return nil
	}

	now := coordinator.now()
	reset := time.Unix(record.Reset, 0)

	coordinator.log.Debug("shared rate limit state",
		zap.String("resource", resource),
		zap.Int64("limit", record.Limit),
		zap.Int64("remaining", record.Remaining),
		zap.Time("reset", reset))

	if record.Remaining <= 0 {
		if !reset.After(now) {
			// the window already rolled over
			_ = coordinator.store.Delete(ctx, recordKey(resource))
			return nil
		}

		wait := reset.Sub(now) + coordinator.config.Buffer
		if wait < coordinator.config.MinSleep {
			wait = coordinator.config.MinSleep
		}
		coordinator.log.Warn("rate limit exhausted, waiting for reset",
			zap.String("resource", resource),
			zap.Duration("wait", wait),
			zap.Time("reset", reset))

		if !sync2.Sleep(ctx, wait) {
			return ctx.Err()
		}

		coordinator.log.Info("rate limit reset reached, resuming",
			zap.String("resource", resource))

		if err := coordinator.store.Delete(ctx, recordKey(resource)); err != nil && !storage.ErrKeyNotFound.Has(err) {
			return Error.Wrap(err)
		}
		return nil
	}

	if record.Limit > 0 && record.Remaining < record.Limit/10 {
		coordinator.log.Warn("rate limit budget running low",
			zap.String("resource", resource),
			zap.Int64("remaining", record.Remaining),
			zap.Int64("limit", record.Limit))
	}
	return nil
}

// RecordLimit publishes the rate limit headers of a response to the shared
// store. Responses missing any of the three headers are ignored. The record
// expires shortly after the reset timestamp so stale state cleans itself up.
func (coordinator *Coordinator) RecordLimit(ctx context.Context, resource string, header http.Header) (err error) {
	defer mon.Task()(&ctx)(&err)

	limit, okLimit := headerInt(header, "X-RateLimit-Limit")
	remaining, okRemaining := headerInt(header, "X-RateLimit-Remaining")
	reset, okReset := headerInt(header, "X-RateLimit-Reset")
	if !okLimit || !okRemaining || !okReset {
		return nil
	}

	value, err := json.Marshal(Record{
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
	})
	if err != nil {
		return Error.Wrap(err)
	}

	ttl := time.Unix(reset, 0).Sub(coordinator.now()) + 2*coordinator.config.Buffer
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}

	if err := coordinator.store.PutWithTTL(ctx, recordKey(resource), value, ttl); err != nil {
		return Error.Wrap(err)
	}

	// reseed the local spend counter from what the API reported
	budget := storage.Value(strconv.FormatInt(remaining, 10))
	return Error.Wrap(coordinator.store.PutWithTTL(ctx, budgetKey(resource), budget, ttl))
}

// ConsumeLocal spends one request from the locally tracked budget and
// returns the credit left. The counter saturates at zero, it is advisory
// accounting between header refreshes rather than a hard gate.
func (coordinator *Coordinator) ConsumeLocal(ctx context.Context, resource string) (remaining int64, err error) {
	defer mon.Task()(&ctx)(&err)

	remaining, err = coordinator.store.DecrBy(ctx, budgetKey(resource), 1)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return remaining, nil
}

// headerInt reads a header as a base-10 integer. http.Header.Get is
// case-insensitive and returns the first value when the header repeats.
func headerInt(header http.Header, name string) (int64, bool) {
	raw := header.Get(name)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
