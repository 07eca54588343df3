// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package ingest polls the public events feed and hands push events to the
// job queue.
package ingest

import (
	"context"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hubtide/hubtide/harvester/jobs"
	"github.com/hubtide/hubtide/pkg/github"
)

var (
	// Error is the default error class for the ingest package.
	Error = errs.Class("ingest")

	mon = monkit.Package()
)

// Result reports what one poll of the feed accomplished.
type Result struct {
	EventsFetched int
	JobsEnqueued  int
}

// Service reads the public events feed and enqueues a handle-event job for
// every push event on it. The API client coordinates the shared rate limit
// around the feed request itself.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	client *github.Client
	queue  *jobs.Queue
}

// NewService creates an ingest service.
func NewService(log *zap.Logger, client *github.Client, queue *jobs.Queue) *Service {
	return &Service{
		log:    log,
		client: client,
		queue:  queue,
	}
}

// RunCycle performs one poll. An unchanged feed counts as a successful poll
// with zero events.
func (service *Service) RunCycle(ctx context.Context) (_ Result, err error) {
	defer mon.Task()(&ctx)(&err)

	events, err := service.client.ListPublicEvents(ctx)
	if err != nil {
		if github.ErrNotModified.Has(err) {
			service.log.Debug("feed unchanged since last poll")
			return Result{}, nil
		}
		return Result{}, Error.Wrap(err)
	}

	result := Result{EventsFetched: len(events)}
	for i := range events {
		event := &events[i]
		if event.Type != github.TypePushEvent {
			continue
		}
		// the job carries the verbatim feed element, the handler decodes it
		if err := service.queue.Enqueue(ctx, jobs.KindHandleEvent, event.Raw); err != nil {
			return result, Error.Wrap(err)
		}
		result.JobsEnqueued++
	}

	mon.IntVal("events_fetched").Observe(int64(result.EventsFetched))
	mon.IntVal("jobs_enqueued").Observe(int64(result.JobsEnqueued))
	service.log.Info("polled public events",
		zap.Int("fetched", result.EventsFetched),
		zap.Int("enqueued", result.JobsEnqueued))
	return result, nil
}
