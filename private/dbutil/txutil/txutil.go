// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package txutil provides safe transaction-encapsulation functions which
// have retry semantics as necessary.
package txutil

import (
	"context"
	"database/sql"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/hubtide/hubtide/private/dbutil/pgutil"
)

var mon = monkit.Package()

const (
	maxTxRetries  = 3
	maxTxDuration = time.Minute
)

// WithTx runs fn inside a transaction on db. The transaction is committed
// when fn returns nil and rolled back otherwise. Serialization failures and
// deadlocks restart the whole transaction, so fn may run more than once;
// any side effects outside the database must be idempotent.
func WithTx(ctx context.Context, db *sql.DB, txOpts *sql.TxOptions, fn func(context.Context, *sql.Tx) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	start := time.Now()

	for i := 0; ; i++ {
		err, rollbackErr := withTxOnce(ctx, db, txOpts, fn)
		if time.Since(start) < maxTxDuration && i < maxTxRetries {
			switch pgutil.ErrorCode(err) {
			case pgutil.CodeSerializationFailure, pgutil.CodeDeadlockDetected:
				mon.Event("transaction_retry")
				continue
			}
		}
		mon.IntVal("transaction_retries").Observe(int64(i))
		return errs.Wrap(errs.Combine(err, rollbackErr))
	}
}

// withTxOnce creates a transaction, ensures that it is eventually released
// (commit or rollback) and passes it to the provided callback. It does not
// handle retries, delegating that to callers.
func withTxOnce(ctx context.Context, db *sql.DB, txOpts *sql.TxOptions, fn func(context.Context, *sql.Tx) error) (err, rollbackErr error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := db.BeginTx(ctx, txOpts)
	if err != nil {
		return errs.Wrap(err), nil
	}
	defer func() {
		if err == nil {
			err = tx.Commit()
		} else {
			rollbackErr = tx.Rollback()
		}
	}()

	return fn(ctx, tx), nil
}
