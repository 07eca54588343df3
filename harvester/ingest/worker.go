// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package ingest

import (
	"context"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hubtide/hubtide/pkg/github"
	"github.com/hubtide/hubtide/private/sync2"
)

// DefaultInterval is the poll interval used when neither the config nor the
// environment names one.
const DefaultInterval = time.Minute

const (
	rateLimitedBackoff = 5 * time.Minute
	failureBackoff     = 30 * time.Second
)

// Config holds the poll loop settings.
type Config struct {
	Interval time.Duration `help:"how often the public events feed is polled, zero falls back to INGESTION_POLL_INTERVAL in seconds and then to a minute" default:"0"`
}

// Worker drives the poll loop. Poll failures are logged and backed off, the
// loop itself only stops with its context.
//
// architecture: Worker
type Worker struct {
	log     *zap.Logger
	service *Service

	rateLimitedBackoff time.Duration
	failureBackoff     time.Duration

	polled sync2.Fence

	Loop *sync2.Cycle
}

// NewWorker wires the poll loop around the ingest service.
func NewWorker(log *zap.Logger, service *Service, config Config) *Worker {
	return &Worker{
		log:     log,
		service: service,

		rateLimitedBackoff: rateLimitedBackoff,
		failureBackoff:     failureBackoff,

		Loop: sync2.NewCycle(pollInterval(log, config)),
	}
}

// SetBackoff overrides the failure backoffs. Tests only.
func (worker *Worker) SetBackoff(rateLimited, failure time.Duration) {
	worker.rateLimitedBackoff = rateLimited
	worker.failureBackoff = failure
}

// Run polls until ctx is canceled.
func (worker *Worker) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return worker.Loop.Run(ctx, func(ctx context.Context) error {
		_, err := worker.service.RunCycle(ctx)
		switch {
		case err == nil:
			worker.polled.Release()
		case github.ErrRateLimited.Has(err):
			worker.log.Warn("rate limited, backing off", zap.Error(err))
			sync2.Sleep(ctx, worker.rateLimitedBackoff)
		case github.ErrServer.Has(err):
			worker.log.Error("poll failed upstream", zap.Error(err))
			sync2.Sleep(ctx, worker.failureBackoff)
		default:
			worker.log.Error("poll failed", zap.Error(err))
			sync2.Sleep(ctx, worker.failureBackoff)
		}
		return nil
	})
}

// Polled blocks until the feed has been polled successfully at least once,
// or until ctx is done. It reports whether the poll happened.
func (worker *Worker) Polled(ctx context.Context) bool {
	return worker.polled.Wait(ctx)
}

// Close stops the poll loop.
func (worker *Worker) Close() error {
	worker.Loop.Close()
	return nil
}

// pollInterval resolves the poll interval: an explicit config value wins,
// then INGESTION_POLL_INTERVAL in whole seconds, then DefaultInterval.
func pollInterval(log *zap.Logger, config Config) time.Duration {
	if config.Interval > 0 {
		return config.Interval
	}
	value := os.Getenv("INGESTION_POLL_INTERVAL")
	if value == "" {
		return DefaultInterval
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		log.Warn("invalid INGESTION_POLL_INTERVAL, using default",
			zap.String("value", value),
			zap.Duration("default", DefaultInterval))
		return DefaultInterval
	}
	return time.Duration(seconds) * time.Second
}
