// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package avatars

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hubtide/hubtide/blobstore"
	"github.com/hubtide/hubtide/harvester/harvesterdb"
	"github.com/hubtide/hubtide/harvester/jobs"
	"github.com/hubtide/hubtide/pkg/httpfetch"
)

// Result reports what Process did for one avatar.
type Result struct {
	Key      string
	Uploaded bool
	Skipped  bool
}

// Service runs the avatar pipeline: derive the blob key, mirror the image
// unless it is already stored, record the key on the user row.
//
// architecture: Service
type Service struct {
	log       *zap.Logger
	downloads *httpfetch.Client
	blobs     blobstore.Blobs
	users     harvesterdb.Users
	config    Config
}

// NewService constructs an avatar service.
func NewService(log *zap.Logger, downloads *httpfetch.Client, blobs blobstore.Blobs, users harvesterdb.Users, config Config) *Service {
	return &Service{
		log:       log,
		downloads: downloads,
		blobs:     blobs,
		users:     users,
		config:    config,
	}
}

// Process mirrors one avatar. An image already present under the derived
// key is not downloaded again, but the key is still recorded on the user
// row so an earlier run that died between upload and record heals here.
func (service *Service) Process(ctx context.Context, userID int64, avatarURL string) (_ Result, err error) {
	defer mon.Task()(&ctx)(&err)

	key, err := Key(avatarURL)
	if err != nil {
		return Result{}, err
	}

	exists, err := service.blobs.Exists(ctx, key)
	if err != nil {
		return Result{}, ErrStore.Wrap(err)
	}

	uploaded := false
	if !exists {
		if err := service.store(ctx, key, avatarURL); err != nil {
			return Result{}, err
		}
		uploaded = true
	}

	if err := service.users.SetAvatarKey(ctx, userID, key); err != nil {
		return Result{}, err
	}

	service.log.Debug("avatar processed",
		zap.Int64("user_id", userID),
		zap.String("key", key),
		zap.Bool("uploaded", uploaded))

	return Result{Key: key, Uploaded: uploaded, Skipped: !uploaded}, nil
}

// store downloads the image into a temp file and uploads it under key. The
// size cap applies to the announced length and to the streamed body alike.
func (service *Service) store(ctx context.Context, key, avatarURL string) (err error) {
	defer mon.Task()(&ctx)(&err)

	maxBytes := service.config.MaxSize.Int64()

	info, err := service.downloads.Head(ctx, avatarURL)
	if err != nil {
		return err
	}
	if info.ContentLength > maxBytes {
		return httpfetch.ErrTooLarge.New("announced %d bytes exceeds cap %d", info.ContentLength, maxBytes)
	}

	temp, err := os.CreateTemp("", "avatar-*")
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, temp.Close(), os.Remove(temp.Name()))
	}()

	result, err := service.downloads.Download(ctx, avatarURL, temp, maxBytes)
	if err != nil {
		return err
	}
	if _, err := temp.Seek(0, io.SeekStart); err != nil {
		return Error.Wrap(err)
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	if err := service.blobs.Put(ctx, key, temp, contentType); err != nil {
		return ErrStore.Wrap(err)
	}
	return nil
}

// HandleJob adapts Process to the job runtime.
func (service *Service) HandleJob(ctx context.Context, payload json.RawMessage) error {
	var job jobs.ProcessAvatarPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		return Error.Wrap(err)
	}
	_, err := service.Process(ctx, job.UserID, job.AvatarURL)
	return err
}

// Policy retries infrastructure trouble with exponential backoff and drops
// jobs that can never succeed: bad URLs, oversized files and users whose
// row vanished.
func Policy() jobs.Policy {
	return jobs.PolicyFunc(func(err error, attempts int) (time.Duration, bool) {
		switch {
		case ErrInvalidURL.Has(err),
			httpfetch.ErrTooLarge.Has(err),
			harvesterdb.ErrNotFound.Has(err):
			return 0, false

		case httpfetch.ErrDownload.Has(err), ErrStore.Has(err):
			if attempts < 5 {
				return time.Duration(1<<uint(attempts)) * time.Second, true
			}
		}
		return 0, false
	})
}
