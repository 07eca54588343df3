// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package harvester wires the pieces of the event harvesting process
// together: the feed poller, the job runtime with its handlers, the shared
// rate limit coordination and the stores everything lands in.
package harvester

import (
	"context"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hubtide/hubtide/blobstore"
	"github.com/hubtide/hubtide/blobstore/s3"
	"github.com/hubtide/hubtide/harvester/avatars"
	"github.com/hubtide/hubtide/harvester/events"
	"github.com/hubtide/hubtide/harvester/fetcher"
	"github.com/hubtide/hubtide/harvester/harvesterdb"
	"github.com/hubtide/hubtide/harvester/ingest"
	"github.com/hubtide/hubtide/harvester/jobs"
	"github.com/hubtide/hubtide/pkg/github"
	"github.com/hubtide/hubtide/pkg/httpfetch"
	"github.com/hubtide/hubtide/pkg/ratelimit"
	"github.com/hubtide/hubtide/private/lifecycle"
	"github.com/hubtide/hubtide/storage/redis"
)

var mon = monkit.Package()

// Peer is the harvester process.
//
// architecture: Peer
type Peer struct {
	Log *zap.Logger
	DB  harvesterdb.DB

	Services *lifecycle.Group

	Redis struct {
		Client *redis.Client
	}

	RateLimit struct {
		Coordinator *ratelimit.Coordinator
	}

	GitHub struct {
		Client *github.Client
	}

	Jobs struct {
		Queue   *jobs.Queue
		Runtime *jobs.Runtime
	}

	Events struct {
		Handler *events.Handler
	}

	Fetcher struct {
		Service *fetcher.Service
	}

	Avatars struct {
		Downloads *httpfetch.Client
		Blobs     blobstore.Blobs
		Service   *avatars.Service
	}

	Ingest struct {
		Service *ingest.Service
		Worker  *ingest.Worker
	}
}

// New creates a harvester peer from the open database and the config.
func New(ctx context.Context, log *zap.Logger, db harvesterdb.DB, config *Config) (*Peer, error) {
	peer := &Peer{
		Log: log,
		DB:  db,

		Services: lifecycle.NewGroup(log.Named("services")),
	}

	{ // setup shared state
		// one redis connection backs both the rate limit records and the
		// job queue, so it closes last
		client, err := redis.OpenClientFrom(ctx, config.Redis)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		peer.Redis.Client = client

		peer.Services.Add(lifecycle.Item{
			Name:  "redis",
			Close: peer.Redis.Client.Close,
		})
	}

	{ // setup rate limit coordination and the API client
		peer.RateLimit.Coordinator = ratelimit.NewCoordinator(
			log.Named("ratelimit"),
			peer.Redis.Client,
			config.RateLimit,
		)

		peer.GitHub.Client = github.NewClient(
			log.Named("github"),
			config.GitHub,
			peer.RateLimit.Coordinator,
		)
	}

	{ // setup job queue
		peer.Jobs.Queue = jobs.NewQueue(redis.NewQueue(peer.Redis.Client, config.Jobs.QueueName))
		peer.Jobs.Runtime = jobs.NewRuntime(log.Named("jobs"), peer.Jobs.Queue, config.Jobs)
	}

	{ // setup blob storage and downloads
		blobs, err := s3.Open(ctx, log.Named("blobstore"), config.Blobs)
		if err != nil {
			return nil, errs.Combine(err, peer.Close())
		}
		peer.Avatars.Blobs = blobs
		peer.Avatars.Downloads = httpfetch.NewClient(config.Download)
	}

	{ // setup job handlers
		peer.Events.Handler = events.NewHandler(
			log.Named("events"),
			peer.DB,
			peer.Jobs.Queue,
		)

		peer.Fetcher.Service = fetcher.NewService(
			log.Named("fetcher"),
			peer.GitHub.Client,
			peer.DB,
			peer.Jobs.Queue,
			fetcher.NewGuard(config.Fetcher.Threshold()),
		)

		peer.Avatars.Service = avatars.NewService(
			log.Named("avatars"),
			peer.Avatars.Downloads,
			peer.Avatars.Blobs,
			peer.DB.Users(),
			config.Avatars,
		)

		peer.Jobs.Runtime.Register(jobs.KindHandleEvent, peer.Events.Handler.HandleJob, events.Policy())
		peer.Jobs.Runtime.Register(jobs.KindFetchUser, peer.Fetcher.Service.HandleFetchUser, fetcher.Policy())
		peer.Jobs.Runtime.Register(jobs.KindFetchRepository, peer.Fetcher.Service.HandleFetchRepository, fetcher.Policy())
		peer.Jobs.Runtime.Register(jobs.KindFetchOrganization, peer.Fetcher.Service.HandleFetchOrganization, fetcher.Policy())
		peer.Jobs.Runtime.Register(jobs.KindProcessAvatar, peer.Avatars.Service.HandleJob, avatars.Policy())

		peer.Services.Add(lifecycle.Item{
			Name:  "jobs",
			Run:   peer.Jobs.Runtime.Run,
			Close: peer.Jobs.Runtime.Close,
		})
	}

	{ // setup feed polling
		peer.Ingest.Service = ingest.NewService(
			log.Named("ingest"),
			peer.GitHub.Client,
			peer.Jobs.Queue,
		)
		peer.Ingest.Worker = ingest.NewWorker(log.Named("ingest:worker"), peer.Ingest.Service, config.Ingest)

		peer.Services.Add(lifecycle.Item{
			Name:  "ingest",
			Run:   peer.Ingest.Worker.Run,
			Close: peer.Ingest.Worker.Close,
		})
	}

	return peer, nil
}

// Run starts every registered service and blocks until the context is
// canceled or one of them fails.
func (peer *Peer) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	group, ctx := errgroup.WithContext(ctx)

	peer.Services.Run(ctx, group)

	return group.Wait()
}

// Close closes all the resources in reverse order.
func (peer *Peer) Close() error {
	return peer.Services.Close()
}
