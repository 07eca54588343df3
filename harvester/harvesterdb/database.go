// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package harvesterdb persists harvested records in Postgres.
//
// Every saver is idempotent: push events are insert-or-ignore on their
// upstream identifier, profile records are assign-all upserts keyed on the
// upstream identifier. Replayed jobs therefore never corrupt state.
package harvesterdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq" // also registers the postgres driver
	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hubtide/hubtide/private/dbutil"
	"github.com/hubtide/hubtide/private/dbutil/pgutil"
)

var (
	// Error is the default error class for the package.
	Error = errs.Class("harvesterdb")

	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errs.Class("record not found")

	// ErrRetryable is returned on driver errors that are worth retrying,
	// deadlocks, serialization failures and dropped connections.
	ErrRetryable = errs.Class("retryable database error")

	mon = monkit.Package()
)

// DB is the interface to the harvested records database.
//
// architecture: Database
type DB interface {
	// PushEvents returns the push event store.
	PushEvents() PushEvents
	// Users returns the user store.
	Users() Users
	// Repositories returns the repository store.
	Repositories() Repositories
	// Organizations returns the organization store.
	Organizations() Organizations

	// MigrateToLatest brings the schema up to date.
	MigrateToLatest(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// Open connects to the Postgres database at databaseURL.
func Open(ctx context.Context, log *zap.Logger, databaseURL string) (DB, error) {
	driver, source, implementation, err := dbutil.SplitConnStr(databaseURL)
	if err != nil {
		return nil, err
	}
	if implementation != dbutil.Postgres {
		return nil, Error.New("unsupported database %q, expected a postgres:// URL", driver)
	}
	source = pgutil.CheckApplicationName(source, "hubtide")

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, Error.Wrap(errs.Combine(err, db.Close()))
	}

	dbutil.Configure(db, "harvesterdb", mon)

	return &database{log: log, db: db}, nil
}

// database implements DB on a single *sql.DB pool.
type database struct {
	log *zap.Logger
	db  *sql.DB
}

// wrapDB wraps an existing pool, used by tests to run against sqlmock.
func wrapDB(log *zap.Logger, db *sql.DB) *database {
	return &database{log: log, db: db}
}

func (db *database) PushEvents() PushEvents { return &pushEvents{db: db} }

func (db *database) Users() Users { return &users{db: db} }

func (db *database) Repositories() Repositories { return &repositories{db: db} }

func (db *database) Organizations() Organizations { return &organizations{db: db} }

// MigrateToLatest brings the schema up to date.
func (db *database) MigrateToLatest(ctx context.Context) error {
	return db.Migration().Run(ctx, db.log.Named("migrate"))
}

// Close releases the connection pool.
func (db *database) Close() error {
	return Error.Wrap(db.db.Close())
}

// wrapErr classifies driver errors so job retry policies can match them.
func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound.Wrap(err)
	case pgutil.IsRetryable(err):
		return ErrRetryable.Wrap(err)
	default:
		return Error.Wrap(err)
	}
}

// column is one mapped attribute of an upstream object.
type column struct {
	name  string
	value interface{}
}

// upsertSQL builds an insert that reassigns every mapped column when the id
// already exists. Conflict detection happens on the primary key alone, the
// raw JSON column never participates in it.
func upsertSQL(table string, columns []column) (query string, args []interface{}) {
	var names, placeholders, updates strings.Builder
	args = make([]interface{}, 0, len(columns))

	for i, col := range columns {
		if i > 0 {
			names.WriteString(", ")
			placeholders.WriteString(", ")
		}
		names.WriteString(col.name)
		fmt.Fprintf(&placeholders, "$%d", i+1)
		args = append(args, col.value)

		if col.name == "id" {
			continue
		}
		if updates.Len() > 0 {
			updates.WriteString(", ")
		}
		fmt.Fprintf(&updates, "%s = EXCLUDED.%s", col.name, col.name)
	}

	query = "INSERT INTO " + table + " (" + names.String() + ")" +
		" VALUES (" + placeholders.String() + ")" +
		" ON CONFLICT (id) DO UPDATE SET " + updates.String() + ", updated_at = now()"
	return query, args
}

// rawJSON adapts verbatim JSON bytes for a json column. lib/pq would send
// []byte as bytea, so the value goes over the wire as text.
func rawJSON(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// stringArray adapts a topics slice for a text[] column.
func stringArray(values []string) interface{} {
	if values == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(values)
}
