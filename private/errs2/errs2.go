// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package errs2 collects common error handling helpers.
package errs2

import (
	"context"

	"github.com/zeebo/errs"
)

// IsCanceled returns true when the error is a context cancellation.
func IsCanceled(err error) bool {
	return errs.IsFunc(err, func(err error) bool {
		return err == context.Canceled //nolint: errorlint // errs.IsFunc unwraps the chain already
	})
}

// IgnoreCanceled returns nil when the operation failed because of a
// context cancellation.
func IgnoreCanceled(err error) error {
	if IsCanceled(err) {
		return nil
	}
	return err
}
