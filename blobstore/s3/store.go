// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package s3 implements blob storage on any S3-compatible object store.
package s3

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hubtide/hubtide/blobstore"
)

var (
	// Error is the error class for the s3 blob store.
	Error = errs.Class("s3")

	mon = monkit.Package()
)

// Config is the config struct for the s3 blob store. The defaults read the
// standard AWS environment so deployments against real S3 need nothing but
// credentials, while emulators override the endpoint.
type Config struct {
	Bucket          string `help:"bucket avatar objects are stored in" default:"user-avatars" env:"AVATAR_S3_BUCKET"`
	Region          string `help:"region of the bucket" default:"" env:"AWS_REGION"`
	AccessKeyID     string `help:"static access key id, empty uses the default credential chain" default:"" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `help:"static secret access key" default:"" env:"AWS_SECRET_ACCESS_KEY" hidden:"true"`
	Endpoint        string `help:"custom endpoint for S3-compatible stores and emulators" default:"" env:"AWS_ENDPOINT_URL"`
	ForcePathStyle  bool   `help:"address the bucket in the path instead of the host" default:"false" env:"AWS_FORCE_PATH_STYLE"`
}

// Store implements blobstore.Blobs on an S3 bucket.
type Store struct {
	log    *zap.Logger
	client *s3.Client
	bucket string
}

// Open builds an S3 client from the config and verifies nothing; the first
// operation surfaces connectivity problems.
func Open(ctx context.Context, log *zap.Logger, config Config) (*Store, error) {
	var loadOptions []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if config.Endpoint != "" {
			options.BaseEndpoint = aws.String(config.Endpoint)
		}
		options.UsePathStyle = config.ForcePathStyle
	})

	return &Store{
		log:    log,
		client: client,
		bucket: config.Bucket,
	}, nil
}

// Put uploads the object read from body under key.
func (store *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (err error) {
	defer mon.Task()(&ctx)(&err)

	input := &s3.PutObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	_, err = store.client.PutObject(ctx, input)
	if err != nil {
		return Error.Wrap(err)
	}

	store.log.Debug("uploaded blob",
		zap.String("bucket", store.bucket),
		zap.String("key", key),
		zap.String("content-type", contentType))
	return nil
}

// Exists reports whether an object is stored under key.
func (store *Store) Exists(ctx context.Context, key string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = store.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, Error.Wrap(err)
	}
	return true, nil
}

// Delete removes the object under key. Deleting a missing object is not an
// error, S3 semantics already guarantee that.
func (store *Store) Delete(ctx context.Context, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = store.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	return Error.Wrap(err)
}

// isNotFound recognizes the missing-object errors HeadObject produces.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &noSuchKey)
}

var _ blobstore.Blobs = (*Store)(nil)
