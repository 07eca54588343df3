// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package process

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
)

// SaveConfig saves only the flags with values different from the defaults
// to outfile, along with the values in 'overrides'.
func SaveConfig(cmd *cobra.Command, outfile string, overrides map[string]interface{}) error {
	return saveConfig(cmd.Flags(), outfile, overrides, false)
}

// SaveConfigWithAllDefaults saves the flags to outfile, commenting out
// entries that hold their default value so the file documents itself.
func SaveConfigWithAllDefaults(flags *pflag.FlagSet, outfile string, overrides map[string]interface{}) error {
	return saveConfig(flags, outfile, overrides, true)
}

func saveConfig(flags *pflag.FlagSet, outfile string, overrides map[string]interface{}, saveAllDefaults bool) error {
	// sort keys for a stable output
	var keys []string
	flags.VisitAll(func(f *pflag.Flag) {
		keys = append(keys, f.Name)
	})
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		f := flags.Lookup(key)
		if f.Hidden || readBoolAnnotation(f, "setup") || readBoolAnnotation(f, "hidden") {
			continue
		}

		value := f.Value.String()
		overrideValue, overrideExists := overrides[key]
		if overrideExists {
			value = fmt.Sprint(overrideValue)
		}

		changed := f.Changed || overrideExists
		if !saveAllDefaults && !changed && !readBoolAnnotation(f, "user") {
			continue
		}

		if f.Usage != "" {
			fmt.Fprintf(&sb, "# %s\n", f.Usage)
		}
		if changed {
			fmt.Fprintf(&sb, "%s: %s\n\n", key, quoteYAML(value))
		} else {
			fmt.Fprintf(&sb, "# %s: %s\n\n", key, quoteYAML(value))
		}
	}

	return errs.Wrap(atomicWrite(outfile, 0600, []byte(sb.String())))
}

// quoteYAML quotes values that yaml would otherwise mangle.
func quoteYAML(value string) string {
	if value == "" {
		return `""`
	}
	if strings.ContainsAny(value, ":#{}[]&*!|>'\"%@`") || strings.HasPrefix(value, " ") {
		return fmt.Sprintf("%q", value)
	}
	return value
}

// readBoolAnnotation reports whether a boolean annotation is set to true on the flag.
func readBoolAnnotation(flag *pflag.Flag, key string) bool {
	annotation := flag.Annotations[key]
	return len(annotation) > 0 && annotation[0] == "true"
}

// atomicWrite writes data to outfile through a rename so that a crash
// cannot leave a half-written config behind.
func atomicWrite(outfile string, mode os.FileMode, data []byte) (err error) {
	fh, err := os.CreateTemp(filepath.Dir(outfile), filepath.Base(outfile))
	if err != nil {
		return errs.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = errs.Combine(err, fh.Close(), os.Remove(fh.Name()))
		}
	}()
	if _, err := fh.Write(data); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Sync(); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Chmod(mode); err != nil {
		return errs.Wrap(err)
	}
	if err := fh.Close(); err != nil {
		return errs.Wrap(err)
	}
	return errs.Wrap(os.Rename(fh.Name(), outfile))
}
