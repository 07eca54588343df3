// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package pgutil contains postgres-specific error and URL helpers.
package pgutil

import (
	"strings"

	"github.com/lib/pq"
	"github.com/zeebo/errs"
)

// Postgres error codes relevant to retry decisions, see
// https://www.postgresql.org/docs/current/errcodes-appendix.html.
const (
	// CodeSerializationFailure is returned when a transaction could not be
	// serialized against concurrent transactions.
	CodeSerializationFailure = "40001"
	// CodeDeadlockDetected is returned when two transactions deadlock.
	CodeDeadlockDetected = "40P01"
	// CodeUniqueViolation is returned on duplicate key inserts.
	CodeUniqueViolation = "23505"
)

// ErrorCode returns the postgres error code of the first *pq.Error in the
// chain of errors walked by unwrapping, or an empty string.
func ErrorCode(err error) (code string) {
	errs.IsFunc(err, func(err error) bool {
		if pgerr, ok := err.(*pq.Error); ok { //nolint: errorlint // IsFunc unwraps the chain already
			code = string(pgerr.Code)
			return true
		}
		return false
	})
	return code
}

// IsRetryable reports whether the error is worth retrying: a deadlock, a
// serialization failure, or a connection that dropped mid-flight.
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case CodeSerializationFailure, CodeDeadlockDetected:
		return true
	}
	return isConnectionFailure(err)
}

// IsConstraintViolation reports whether the error is an integrity
// constraint violation (error class 23).
func IsConstraintViolation(err error) bool {
	return errs.IsFunc(err, func(err error) bool {
		if pgerr, ok := err.(*pq.Error); ok { //nolint: errorlint // IsFunc unwraps the chain already
			return pgerr.Code.Class() == "23"
		}
		return false
	})
}

// isConnectionFailure matches driver errors that indicate the connection
// went away rather than the statement failing. lib/pq surfaces these as
// plain errors, so the match is textual.
func isConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if code := ErrorCode(err); strings.HasPrefix(code, "08") { // connection exception class
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "unexpected EOF") ||
		strings.Contains(msg, "bad connection")
}

// CheckApplicationName ensures that the connection string contains an
// application name, so the server side can tell connections apart.
func CheckApplicationName(s string, app string) string {
	if strings.Contains(s, "application_name") {
		return s
	}
	if !strings.Contains(s, "?") {
		return s + "?application_name=" + app
	}
	return s + "&application_name=" + app
}
