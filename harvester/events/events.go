// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package events turns raw feed elements into stored push events and fans
// out the enrichment jobs for the records they mention.
package events

import (
	"context"
	"encoding/json"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hubtide/hubtide/harvester/harvesterdb"
	"github.com/hubtide/hubtide/harvester/jobs"
	"github.com/hubtide/hubtide/pkg/github"
)

var (
	// Error is the default error class for the events package.
	Error = errs.Class("events")

	mon = monkit.Package()
)

// Handler persists push events and schedules the enrichment work.
//
// architecture: Service
type Handler struct {
	log   *zap.Logger
	db    harvesterdb.DB
	queue *jobs.Queue
}

// NewHandler constructs an event handler.
func NewHandler(log *zap.Logger, db harvesterdb.DB, queue *jobs.Queue) *Handler {
	return &Handler{
		log:   log,
		db:    db,
		queue: queue,
	}
}

// Handle saves the push event and enqueues the enrichment jobs: one
// fetch-repository always, plus fetch-user or fetch-organization depending
// on how the actor URL classifies. Bot, unknown and absent actors only get
// the skip logged. Jobs are not deduplicated, the savers are idempotent.
func (handler *Handler) Handle(ctx context.Context, event *github.Event) (_ *harvesterdb.PushEvent, err error) {
	defer mon.Task()(&ctx)(&err)

	stored, err := handler.db.PushEvents().Save(ctx, event)
	if err != nil {
		return nil, err
	}

	if owner, name, ok := github.SplitRepoName(event.Repo.Name); ok {
		err := handler.queue.Enqueue(ctx, jobs.KindFetchRepository, jobs.FetchRepositoryPayload{
			Owner: owner,
			Name:  name,
		})
		if err != nil {
			return nil, err
		}
	} else {
		handler.log.Warn("event names no usable repository",
			zap.String("event_id", event.ID),
			zap.String("repo_name", event.Repo.Name))
	}

	kind, login := github.ClassifyActorURL(event.Actor.URL)
	switch kind {
	case github.ActorUser:
		err := handler.queue.Enqueue(ctx, jobs.KindFetchUser, jobs.FetchUserPayload{Login: login})
		if err != nil {
			return nil, err
		}
	case github.ActorOrganization:
		err := handler.queue.Enqueue(ctx, jobs.KindFetchOrganization, jobs.FetchOrganizationPayload{Login: login})
		if err != nil {
			return nil, err
		}
	default:
		mon.Counter("actor_fetch_skipped").Inc(1)
		handler.log.Debug("skipping actor fetch",
			zap.String("event_id", event.ID),
			zap.Stringer("actor_kind", kind),
			zap.String("actor_login", event.Actor.Login))
	}

	return stored, nil
}

// HandleJob adapts Handle to the job runtime. The payload is the verbatim
// feed element the ingest cycle enqueued.
func (handler *Handler) HandleJob(ctx context.Context, payload json.RawMessage) error {
	var event github.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Error.Wrap(err)
	}
	event.Raw = payload

	_, err := handler.Handle(ctx, &event)
	return err
}

// Policy retries retryable database failures, deadlocks under concurrent
// insertion of the same event in particular, on a short fixed delay.
// Anything else fails the job immediately.
func Policy() jobs.Policy {
	return jobs.PolicyFunc(func(err error, attempts int) (time.Duration, bool) {
		if harvesterdb.ErrRetryable.Has(err) && attempts < 3 {
			return 5 * time.Second, true
		}
		return 0, false
	})
}
