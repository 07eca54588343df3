// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package fpath implements cross-platform file path helpers.
package fpath

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zeebo/errs"
)

// ApplicationDir returns the best base directory for application specific
// data on the current OS.
func ApplicationDir(subdir ...string) string {
	for i := range subdir {
		if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
			subdir[i] = title(subdir[i])
		} else {
			subdir[i] = strings.ToLower(subdir[i])
		}
	}

	var appdir string
	home := os.Getenv("HOME")

	switch runtime.GOOS {
	case "windows":
		// see https://docs.microsoft.com/en-us/windows/win32/shell/knownfolderid
		for _, env := range []string{"APPDATA", "APPDATALOCAL", "USERPROFILE", "HOME"} {
			if val := os.Getenv(env); val != "" {
				appdir = val
				break
			}
		}
	case "darwin":
		appdir = filepath.Join(home, "Library", "Application Support")
	default:
		// see https://specifications.freedesktop.org/basedir-spec/basedir-spec-latest.html
		appdir = os.Getenv("XDG_DATA_HOME")
		if appdir == "" && home != "" {
			appdir = filepath.Join(home, ".local", "share")
		}
	}

	return filepath.Join(append([]string{appdir}, subdir...)...)
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// IsValidSetupDir checks whether the directory is valid for holding a new
// configuration: it either does not exist yet or holds no config.yaml.
func IsValidSetupDir(name string) (ok bool, err error) {
	_, err = os.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}

	f, err := os.Open(name)
	if err != nil {
		return false, err
	}
	defer func() { err = errs.Combine(err, f.Close()) }()

	for {
		var filenames []string
		filenames, err = f.Readdirnames(100)
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}

		for _, filename := range filenames {
			if filename == "config.yaml" {
				return false, nil
			}
		}
	}
}
