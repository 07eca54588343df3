// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package dbutil contains helpers for working with database URLs and
// connection pools.
package dbutil

import (
	"database/sql"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

// Error is the default dbutil errs class.
var Error = errs.Class("dbutil")

const (
	maxIdleConns    = 2
	maxOpenConns    = 25
	maxConnLifetime = 0 // unlimited
)

// Implementation is the type of a database backend.
type Implementation int

const (
	// Unknown is an unknown database implementation.
	Unknown Implementation = iota
	// Postgres is a PostgreSQL implementation.
	Postgres
	// Bolt is a bbolt key/value store.
	Bolt
	// Redis is a redis key/value store.
	Redis
)

// ImplementationForScheme returns the Implementation that is used for
// the url with the provided scheme.
func ImplementationForScheme(scheme string) Implementation {
	switch scheme {
	case "postgres", "postgresql":
		return Postgres
	case "bolt":
		return Bolt
	case "redis":
		return Redis
	default:
		return Unknown
	}
}

// SplitConnStr returns the driver and source split out from a database URL,
// along with the implementation the scheme selects.
func SplitConnStr(s string) (driver string, source string, implementation Implementation, err error) {
	parts := strings.SplitN(s, "://", 2)
	if len(parts) != 2 {
		return "", "", Unknown, Error.New("could not parse database URL %q", s)
	}
	driver = parts[0]
	source = parts[1]
	implementation = ImplementationForScheme(driver)

	switch implementation {
	case Postgres:
		source = s // lib/pq wants the full URL
		driver = "postgres"
	case Bolt:
		// bolt wants a filesystem path
	case Redis:
		source = s // the redis client parses the full URL
	}

	return driver, source, implementation, nil
}

// Configure sets connection pool boundaries and adds db_stats monitoring
// to monkit.
func Configure(db *sql.DB, dbName string, scope *monkit.Scope) {
	db.SetMaxIdleConns(maxIdleConns)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(maxConnLifetime)

	scope.Chain(monkit.StatSourceFunc(
		func(cb func(key monkit.SeriesKey, field string, val float64)) {
			monkit.StatSourceFromStruct(
				monkit.NewSeriesKey("db_stats").WithTag("db_name", dbName),
				db.Stats(),
			).Stats(cb)
		}))
}
