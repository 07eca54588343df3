// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package jobs runs the harvester's background work off a shared queue.
//
// Every queue entry is a JSON envelope naming a job kind, carrying an
// opaque payload and counting how often the job ran already. Failed jobs
// consult the retry policy registered for their kind and either go back on
// the queue with delayed visibility or get discarded with a log line that
// identifies them.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/hubtide/hubtide/storage"
)

var (
	// Error is the default error class for the jobs package.
	Error = errs.Class("jobs")

	mon = monkit.Package()
)

// The job kinds the harvester knows.
const (
	KindHandleEvent       = "handle-event"
	KindFetchUser         = "fetch-user"
	KindFetchRepository   = "fetch-repository"
	KindFetchOrganization = "fetch-organization"
	KindProcessAvatar     = "process-avatar"
)

// Job is the envelope every queue entry carries.
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// FetchUserPayload asks for a user profile refresh.
type FetchUserPayload struct {
	Login string `json:"login"`
}

// FetchRepositoryPayload asks for a repository refresh.
type FetchRepositoryPayload struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FetchOrganizationPayload asks for an organization refresh.
type FetchOrganizationPayload struct {
	Login string `json:"login"`
}

// ProcessAvatarPayload asks for a user's avatar to be mirrored into blob
// storage. Handle-event payloads have no struct here, they carry the raw
// feed element.
type ProcessAvatarPayload struct {
	UserID    int64  `json:"user_id"`
	AvatarURL string `json:"avatar_url"`
}

// Queue translates between job envelopes and the opaque values of the
// underlying shared queue.
type Queue struct {
	queue storage.Queue
}

// NewQueue wraps a storage queue.
func NewQueue(queue storage.Queue) *Queue {
	return &Queue{queue: queue}
}

// Enqueue adds a fresh job of the given kind. The payload marshals to
// JSON; a json.RawMessage passes through verbatim.
func (queue *Queue) Enqueue(ctx context.Context, kind string, payload interface{}) (err error) {
	defer mon.Task()(&ctx)(&err)

	raw, err := json.Marshal(payload)
	if err != nil {
		return Error.Wrap(err)
	}
	return queue.enqueueJob(ctx, Job{
		ID:         uuid.New(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, time.Time{})
}

// enqueueJob writes the envelope, invisible until notBefore when that is in
// the future.
func (queue *Queue) enqueueJob(ctx context.Context, job Job, notBefore time.Time) error {
	value, err := json.Marshal(job)
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(queue.queue.Enqueue(ctx, value, notBefore))
}

// Dequeue removes the oldest visible job. It passes storage.ErrEmptyQueue
// through when nothing is ready.
func (queue *Queue) Dequeue(ctx context.Context) (_ Job, err error) {
	defer mon.Task()(&ctx)(&err)

	value, err := queue.queue.Dequeue(ctx)
	if err != nil {
		return Job{}, err
	}
	var job Job
	if err := json.Unmarshal(value, &job); err != nil {
		return Job{}, Error.Wrap(err)
	}
	return job, nil
}
