// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package redisserver is package for starting a redis test server.
package redisserver

import (
	"github.com/alicebob/miniredis/v2"
)

// Server is an in-process redis server for tests. FastForward skips the
// server clock, which expires TTL keys without real waiting.
type Server = miniredis.Miniredis

// Start starts an in-process redis server.
func Start() (*Server, error) {
	return miniredis.Run()
}
