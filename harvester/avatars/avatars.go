// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package avatars mirrors user avatar images into blob storage and records
// the resulting blob key on the owning user row.
package avatars

import (
	"net/url"
	"regexp"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"github.com/hubtide/hubtide/pkg/memory"
)

var (
	// Error is the default error class for the avatars package.
	Error = errs.Class("avatars")

	// ErrInvalidURL is returned when an avatar URL cannot yield a blob key.
	ErrInvalidURL = errs.Class("invalid avatar url")

	// ErrStore is returned when blob storage rejects the image.
	ErrStore = errs.Class("avatar store failed")

	mon = monkit.Package()
)

var (
	avatarHost = regexp.MustCompile(`^(avatars\.)?githubusercontent\.com$`)
	avatarPath = regexp.MustCompile(`^/u/([0-9]+)$`)
)

// Config is the config struct for the avatar pipeline.
type Config struct {
	MaxSize memory.Size `help:"largest avatar image accepted for download" default:"10.00 MB"`
}

// Key derives the blob key an avatar is stored under. The numeric user id
// in the URL path names the key and the v query parameter, when present,
// is appended as a version suffix:
//
//	https://avatars.githubusercontent.com/u/178611968?v=4 -> avatars/178611968-4
//	https://avatars.githubusercontent.com/u/178611968     -> avatars/178611968
//
// URLs with a different scheme, host or path shape yield ErrInvalidURL.
func Key(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrInvalidURL.Wrap(err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidURL.New("unsupported scheme %q", parsed.Scheme)
	}
	if !avatarHost.MatchString(parsed.Hostname()) {
		return "", ErrInvalidURL.New("unexpected host %q", parsed.Hostname())
	}

	match := avatarPath.FindStringSubmatch(parsed.Path)
	if match == nil {
		return "", ErrInvalidURL.New("no user id in path %q", parsed.Path)
	}

	key := "avatars/" + match[1]
	if version := parsed.Query().Get("v"); version != "" {
		key += "-" + version
	}
	return key, nil
}
