// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package blobstore declares the object storage interface avatar images
// are kept in.
package blobstore

import (
	"context"
	"io"

	"github.com/zeebo/errs"
)

// Error is the default error class for blob storage.
var Error = errs.Class("blobstore")

// Blobs stores immutable objects under flat string keys.
//
// architecture: Database
type Blobs interface {
	// Put uploads the object read from body under key.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the object under key. Deleting a missing object is
	// not an error.
	Delete(ctx context.Context, key string) error
}
