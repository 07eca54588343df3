// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package fpath_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hubtide/hubtide/pkg/fpath"
)

func TestIsValidSetupDir(t *testing.T) {
	base := t.TempDir()

	ok, err := fpath.IsValidSetupDir(filepath.Join(base, "missing"))
	require.NoError(t, err)
	require.True(t, ok)

	empty := filepath.Join(base, "empty")
	require.NoError(t, os.MkdirAll(empty, 0700))
	ok, err = fpath.IsValidSetupDir(empty)
	require.NoError(t, err)
	require.True(t, ok)

	// unrelated files do not block setup
	occupied := filepath.Join(base, "occupied")
	require.NoError(t, os.MkdirAll(occupied, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(occupied, "kv.db"), []byte("data"), 0600))
	ok, err = fpath.IsValidSetupDir(occupied)
	require.NoError(t, err)
	require.True(t, ok)

	used := filepath.Join(base, "used")
	require.NoError(t, os.MkdirAll(used, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(used, "config.yaml"), []byte("# config"), 0600))
	ok, err = fpath.IsValidSetupDir(used)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApplicationDir(t *testing.T) {
	dir := fpath.ApplicationDir("hubtide")
	require.NotEmpty(t, dir)
	require.Equal(t, "hubtide", filepath.Base(dir))
}
