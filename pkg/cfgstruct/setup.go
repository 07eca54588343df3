// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package cfgstruct

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// FindConfigDirParam returns the '--config-dir' param from os.Args, if it exists.
func FindConfigDirParam() string {
	return FindFlagEarly("config-dir")
}

// FindFlagEarly retrieves the value of a flag before `flag.Parse` has been called.
func FindFlagEarly(flagName string) string {
	// workaround to have early access to the param
	for i, arg := range os.Args {
		if strings.HasPrefix(arg, fmt.Sprintf("--%s=", flagName)) {
			return strings.TrimPrefix(arg, fmt.Sprintf("--%s=", flagName))
		} else if arg == fmt.Sprintf("--%s", flagName) && i < len(os.Args)-1 {
			return os.Args[i+1]
		}
	}
	return ""
}

// SetupFlag sets up flags that are needed before `flag.Parse` has been called.
func SetupFlag(log *zap.Logger, cmd *cobra.Command, dest *string, name, value, usage string) {
	if err := cmd.PersistentFlags().Set(name, value); err != nil {
		// if it's not set, we should definitely define it.
		cmd.PersistentFlags().StringVar(dest, name, value, usage)
		setBoolAnnotation(cmd.PersistentFlags(), name, "setup")
	}
	if foundValue := FindFlagEarly(name); foundValue != "" {
		*dest = foundValue
		if err := cmd.PersistentFlags().Set(name, foundValue); err != nil {
			log.Error("Failed to set flag", zap.String("Flag", name))
		}
	}
}

// DefaultsType returns the type of defaults (dev/release) this binding should use.
func DefaultsType(cmd *cobra.Command) string {
	// define a flag so that the flag parsing system will be happy.
	defaults := strings.ToLower(FindFlagEarly("defaults"))
	if defaults != "" {
		return defaults
	}
	return "release"
}

// DefaultsFlag sets up the defaults=dev/release flag options, which is needed
// before `flag.Parse` has been called.
func DefaultsFlag(cmd *cobra.Command) BindOpt {
	// we're actually going to ignore this flag entirely and parse the commandline
	// arguments early instead
	defaults := DefaultsType(cmd)
	_ = cmd.PersistentFlags().String("defaults", defaults,
		"determines which set of configuration defaults to use. can either be 'dev' or 'release'")

	switch defaults {
	case "dev":
		return UseDevDefaults()
	case "release":
		return UseReleaseDefaults()
	default:
		panic(fmt.Sprintf("unknown defaults value %q", defaults))
	}
}
