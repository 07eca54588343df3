// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package fetcher refreshes user, repository and organization profiles
// from the upstream API, suppressing calls for rows that are still fresh.
package fetcher

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
	// Error is the default error class for the fetcher package.
	Error = errs.Class("fetcher")

	mon = monkit.Package()
)

// Config is the config struct for the enrichment fetchers.
type Config struct {
	StalenessThresholdMinutes int `help:"minutes a stored profile counts as fresh, zero refetches every time" default:"5" env:"STALENESS_THRESHOLD_MINUTES"`
}

// Threshold returns the staleness threshold as a duration.
func (config Config) Threshold() time.Duration {
	return time.Duration(config.StalenessThresholdMinutes) * time.Minute
}

// Service fetches profiles from the API and persists them. Every fetch
// consults the guard with the stored row first; the user fetch also hands
// the avatar on to the avatar pipeline.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	client *github.Client
	db     harvesterdb.DB
	queue  *jobs.Queue
	guard  *Guard
}

// NewService constructs a fetcher service.
func NewService(log *zap.Logger, client *github.Client, db harvesterdb.DB, queue *jobs.Queue, guard *Guard) *Service {
	return &Service{
		log:    log,
		client: client,
		db:     db,
		queue:  queue,
		guard:  guard,
	}
}

// FetchUser refreshes the profile of login. A row still inside the
// staleness threshold is returned as is, without an API call. A fresh
// fetch additionally enqueues a process-avatar job when the profile
// carries an avatar URL.
func (service *Service) FetchUser(ctx context.Context, login string) (_ *harvesterdb.User, err error) {
	defer mon.Task()(&ctx)(&err)

	existing, lookupErr := service.db.Users().GetByLogin(ctx, login)
	var updatedAt time.Time
	if lookupErr == nil {
		updatedAt = existing.UpdatedAt
	}
	if !service.shouldFetch("user", login, updatedAt, lookupErr) {
		return existing, nil
	}

	user, err := service.client.FetchUser(ctx, login)
	if err != nil {
		return nil, service.warnFetch("user", login, err)
	}
	if err := service.db.Users().Upsert(ctx, user); err != nil {
		return nil, err
	}

	if user.AvatarURL != "" {
		err := service.queue.Enqueue(ctx, jobs.KindProcessAvatar, jobs.ProcessAvatarPayload{
			UserID:    user.ID,
			AvatarURL: user.AvatarURL,
		})
		if err != nil {
			return nil, err
		}
	}

	return service.db.Users().Get(ctx, user.ID)
}

// FetchRepository refreshes the repository owner/name. A row still inside
// the staleness threshold is returned as is, without an API call.
func (service *Service) FetchRepository(ctx context.Context, owner, name string) (_ *harvesterdb.Repository, err error) {
	defer mon.Task()(&ctx)(&err)

	fullName := owner + "/" + name
	existing, lookupErr := service.db.Repositories().GetByFullName(ctx, owner, name)
	var updatedAt time.Time
	if lookupErr == nil {
		updatedAt = existing.UpdatedAt
	}
	if !service.shouldFetch("repository", fullName, updatedAt, lookupErr) {
		return existing, nil
	}

	repo, err := service.client.FetchRepository(ctx, owner, name)
	if err != nil {
		return nil, service.warnFetch("repository", fullName, err)
	}
	if err := service.db.Repositories().Upsert(ctx, repo); err != nil {
		return nil, err
	}
	return service.db.Repositories().Get(ctx, repo.ID)
}

// FetchOrganization refreshes the profile of the organization login. A row
// still inside the staleness threshold is returned as is, without an API
// call.
func (service *Service) FetchOrganization(ctx context.Context, login string) (_ *harvesterdb.Organization, err error) {
	defer mon.Task()(&ctx)(&err)

	existing, lookupErr := service.db.Organizations().GetByLogin(ctx, login)
	var updatedAt time.Time
	if lookupErr == nil {
		updatedAt = existing.UpdatedAt
	}
	if !service.shouldFetch("organization", login, updatedAt, lookupErr) {
		return existing, nil
	}

	org, err := service.client.FetchOrganization(ctx, login)
	if err != nil {
		return nil, service.warnFetch("organization", login, err)
	}
	if err := service.db.Organizations().Upsert(ctx, org); err != nil {
		return nil, err
	}
	return service.db.Organizations().Get(ctx, org.ID)
}

// shouldFetch applies the guard to a lookup result. Lookup failures other
// than not-found do not suppress the fetch, the guard is advisory.
func (service *Service) shouldFetch(kind, name string, updatedAt time.Time, lookupErr error) bool {
	switch {
	case lookupErr == nil:
		if service.guard.ShouldFetch(updatedAt, true) {
			return true
		}
		mon.Counter("fetch_skipped_fresh").Inc(1)
		service.log.Debug("record still fresh, skipping fetch",
			zap.String("kind", kind),
			zap.String("name", name),
			zap.Time("last_updated", updatedAt))
		return false
	case harvesterdb.ErrNotFound.Has(lookupErr):
		return true
	default:
		service.log.Warn("freshness lookup failed, fetching anyway",
			zap.String("kind", kind),
			zap.String("name", name),
			zap.Error(lookupErr))
		return true
	}
}

// warnFetch logs an upstream failure with its classification and hands the
// error back unchanged for the retry policy.
func (service *Service) warnFetch(kind, name string, err error) error {
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("name", name),
		zap.String("class", errorClass(err)),
		zap.Error(err),
	}
	if status, ok := github.StatusOf(err); ok {
		fields = append(fields, zap.Int("status", status))
	}
	service.log.Warn("upstream fetch failed", fields...)
	return err
}

func errorClass(err error) string {
	switch {
	case github.ErrRateLimited.Has(err):
		return "rate limited"
	case github.ErrServer.Has(err):
		return "server"
	case github.ErrClient.Has(err):
		return "client"
	default:
		return "unknown"
	}
}

// HandleFetchUser adapts FetchUser to the job runtime.
func (service *Service) HandleFetchUser(ctx context.Context, payload json.RawMessage) error {
	var job jobs.FetchUserPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		return Error.Wrap(err)
	}
	_, err := service.FetchUser(ctx, job.Login)
	return err
}

// HandleFetchRepository adapts FetchRepository to the job runtime.
func (service *Service) HandleFetchRepository(ctx context.Context, payload json.RawMessage) error {
	var job jobs.FetchRepositoryPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		return Error.Wrap(err)
	}
	_, err := service.FetchRepository(ctx, job.Owner, job.Name)
	return err
}

// HandleFetchOrganization adapts FetchOrganization to the job runtime.
func (service *Service) HandleFetchOrganization(ctx context.Context, payload json.RawMessage) error {
	var job jobs.FetchOrganizationPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		return Error.Wrap(err)
	}
	_, err := service.FetchOrganization(ctx, job.Login)
	return err
}

// Policy is shared by the three fetch kinds. Upstream server trouble backs
// off steeply, a rate limit rejection waits out a whole window, and client
// errors are pointless to repeat.
func Policy() jobs.Policy {
	return jobs.PolicyFunc(func(err error, attempts int) (time.Duration, bool) {
		switch {
		case github.ErrRateLimited.Has(err):
			if attempts < 3 {
				return time.Hour, true
			}
		case github.ErrServer.Has(err):
			if attempts < 5 {
				a := time.Duration(attempts)
				return (a*a*a*a + 2) * time.Second, true
			}
		}
		return 0, false
	})
}
