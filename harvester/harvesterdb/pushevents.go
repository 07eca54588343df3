// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package harvesterdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hubtide/hubtide/pkg/github"
)

// PushEvents stores push events keyed by their upstream identifier.
type PushEvents interface {
	// Save stores the push event unless one with the same id exists and
	// returns the stored row either way.
	Save(ctx context.Context, event *github.Event) (*PushEvent, error)
	// Get returns a push event by id.
	Get(ctx context.Context, id string) (*PushEvent, error)
}

// PushEvent is a stored push event. Raw carries the payload object exactly
// as it arrived from the feed.
type PushEvent struct {
	ID              string
	ActorID         int64
	RepoID          int64
	OrgID           *int64
	PushID          int64
	Ref             string
	Head            string
	Before          string
	Raw             []byte
	GithubCreatedAt *time.Time
	CreatedAt       time.Time
}

type pushEvents struct {
	db *database
}

// Save stores the push event unless one with the same id exists. Duplicate
// deliveries leave the original row untouched, both callers see the same
// stored state.
func (events *pushEvents) Save(ctx context.Context, event *github.Event) (_ *PushEvent, err error) {
	defer mon.Task()(&ctx)(&err)

	if event == nil || event.ID == "" {
		return nil, Error.New("event id missing")
	}

	payload, err := event.PushPayload()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var orgID *int64
	if event.Org != nil {
		id := event.Org.ID
		orgID = &id
	}

	_, err = events.db.db.ExecContext(ctx, `
		INSERT INTO push_events (
			id, actor_id, repo_id, org_id, push_id, ref, head, "before", raw, github_created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, event.Actor.ID, event.Repo.ID, orgID,
		payload.PushID, payload.Ref, payload.Head, payload.Before,
		rawJSON(event.Payload), event.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr(err)
	}

	return events.Get(ctx, event.ID)
}

// Get returns a push event by id.
func (events *pushEvents) Get(ctx context.Context, id string) (_ *PushEvent, err error) {
	defer mon.Task()(&ctx)(&err)

	row := events.db.db.QueryRowContext(ctx, `
		SELECT id, actor_id, repo_id, org_id, push_id, ref, head, "before", raw, github_created_at, created_at
		FROM push_events
		WHERE id = $1`,
		id,
	)

	var event PushEvent
	var orgID sql.NullInt64
	var githubCreatedAt sql.NullTime
	err = row.Scan(
		&event.ID, &event.ActorID, &event.RepoID, &orgID,
		&event.PushID, &event.Ref, &event.Head, &event.Before,
		&event.Raw, &githubCreatedAt, &event.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound.New("push event %q", id)
	}
	if err != nil {
		return nil, wrapErr(err)
	}

	if orgID.Valid {
		event.OrgID = &orgID.Int64
	}
	if githubCreatedAt.Valid {
		event.GithubCreatedAt = &githubCreatedAt.Time
	}
	return &event, nil
}
