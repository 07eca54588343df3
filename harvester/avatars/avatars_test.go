// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package avatars_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hubtide/hubtide/harvester/avatars"
)

func TestKey(t *testing.T) {
	for _, tt := range []struct {
		url  string
		key  string
		fail bool
	}{
		{url: "https://avatars.githubusercontent.com/u/178611968?v=4", key: "avatars/178611968-4"},
		{url: "https://avatars.githubusercontent.com/u/178611968", key: "avatars/178611968"},
		{url: "http://githubusercontent.com/u/42?v=12", key: "avatars/42-12"},
		{url: "https://avatars.githubusercontent.com/u/42?s=400&v=7", key: "avatars/42-7"},

		{url: "ftp://avatars.githubusercontent.com/u/42", fail: true},
		{url: "https://example.com/u/42", fail: true},
		{url: "https://evil-avatars.githubusercontent.com.example.com/u/42", fail: true},
		{url: "https://avatars.githubusercontent.com/users/42", fail: true},
		{url: "https://avatars.githubusercontent.com/u/octocat", fail: true},
		{url: "https://avatars.githubusercontent.com/u/42/extra", fail: true},
		{url: "https://avatars.githubusercontent.com/u/", fail: true},
		{url: "", fail: true},
	} {
		key, err := avatars.Key(tt.url)
		if tt.fail {
			require.Error(t, err, tt.url)
			require.True(t, avatars.ErrInvalidURL.Has(err), tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		require.Equal(t, tt.key, key, tt.url)

		// same URL, same key
		again, err := avatars.Key(tt.url)
		require.NoError(t, err)
		require.Equal(t, key, again)
	}
}
