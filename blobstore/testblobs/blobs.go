// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package testblobs implements in-memory blob storage for tests.
package testblobs

import (
	"context"
	"io"
	"sync"

	"github.com/hubtide/hubtide/blobstore"
)

// Blob is a stored object.
type Blob struct {
	Data        []byte
	ContentType string
}

// Store implements blobstore.Blobs in memory.
type Store struct {
	mu    sync.Mutex
	blobs map[string]Blob

	forcedError error
}

// New creates an empty in-memory blob store.
func New() *Store {
	return &Store{
		blobs: map[string]Blob{},
	}
}

// SetError makes every following operation fail with err. A nil err turns
// the failures off again.
func (store *Store) SetError(err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.forcedError = err
}

// Put uploads the object read from body under key.
func (store *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return blobstore.Error.Wrap(err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.forcedError != nil {
		return store.forcedError
	}
	store.blobs[key] = Blob{Data: data, ContentType: contentType}
	return nil
}

// Exists reports whether an object is stored under key.
func (store *Store) Exists(ctx context.Context, key string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.forcedError != nil {
		return false, store.forcedError
	}
	_, ok := store.blobs[key]
	return ok, nil
}

// Delete removes the object under key.
func (store *Store) Delete(ctx context.Context, key string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.forcedError != nil {
		return store.forcedError
	}
	delete(store.blobs, key)
	return nil
}

// Get returns a stored object for assertions.
func (store *Store) Get(key string) (Blob, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	blob, ok := store.blobs[key]
	return blob, ok
}

// Len returns how many objects are stored.
func (store *Store) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.blobs)
}

var _ blobstore.Blobs = (*Store)(nil)
