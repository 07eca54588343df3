// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package process

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hubtide/hubtide/pkg/cfgstruct"
)

// the environment prefix, so that HUBTIDE_LOG_LEVEL=debug overrides the
// --log.level flag.
const envPrefix = "HUBTIDE"

var (
	mtx sync.Mutex

	contexts = map[*cobra.Command]context.Context{}
	cancels  = map[*cobra.Command]context.CancelFunc{}
	vipers   = map[*cobra.Command]*viper.Viper{}
)

// Bind sets flags on a command that match the configuration struct
// 'config'. The values are loaded into the struct before the command runs.
func Bind(cmd *cobra.Command, config interface{}, opts ...cfgstruct.BindOpt) {
	cfgstruct.Bind(cmd.Flags(), config, opts...)
}

// Exec runs a Cobra command. Every leaf command's RunE is wrapped so that
// configuration from the config file and the environment is resolved into
// the bound structs and the global logger is replaced before it executes.
func Exec(cmd *cobra.Command) {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	cleanup(cmd)
	_ = cmd.Execute()
}

// Ctx returns the appropriate context.Context for the command. The context
// is canceled on SIGTERM, SIGINT and SIGQUIT; the signal handler only
// cancels, all I/O stays on the receiving side.
func Ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	mtx.Lock()
	defer mtx.Unlock()

	ctx := contexts[cmd]
	if ctx == nil {
		ctx = context.Background()
		contexts[cmd] = ctx
	}

	cancel := cancels[cmd]
	if cancel == nil {
		ctx, cancel = context.WithCancel(ctx)
		contexts[cmd] = ctx
		cancels[cmd] = cancel

		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		go func() {
			sig, ok := <-c
			if !ok {
				return
			}
			zap.L().Info("Got a signal from the OS", zap.String("signal", sig.String()))
			signal.Stop(c)
			cancel()
		}()
	}

	return ctx, cancel
}

// Viper returns the viper instance associated with the command, creating
// it if necessary. It binds the command flags, the HUBTIDE_ environment
// and, when a config-dir flag is set, the config.yaml inside it.
func Viper(cmd *cobra.Command) (*viper.Viper, error) {
	mtx.Lock()
	defer mtx.Unlock()

	if vip := vipers[cmd]; vip != nil {
		return vip, nil
	}

	vip := viper.New()
	if err := vip.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	vip.SetEnvPrefix(envPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vip.AutomaticEnv()

	cfgFlag := cmd.Flags().Lookup("config-dir")
	if cfgFlag != nil && cfgFlag.Value.String() != "" {
		path := os.ExpandEnv(cfgFlag.Value.String()) + "/config.yaml"
		if fileExists(path) {
			setupCommand := cmd.Annotations["type"] == "setup"
			vip.SetConfigFile(path)
			if err := vip.ReadInConfig(); err != nil && !setupCommand {
				return nil, err
			}
		}
	}

	vipers[cmd] = vip
	return vip, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// cleanup wraps each RunE so that flag values resolve in the order
// flag > exact env alias > HUBTIDE_ env / config file > default.
func cleanup(cmd *cobra.Command) {
	for _, ccmd := range cmd.Commands() {
		cleanup(ccmd)
	}
	if cmd.Run != nil {
		panic("Please use cobra's RunE instead of Run")
	}
	internalRun := cmd.RunE
	if internalRun == nil {
		return
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		_, cancel := Ctx(cmd)
		defer cancel()

		vip, err := Viper(cmd)
		if err != nil {
			return err
		}

		// propagate viper config values back to the flag-bound structs
		var brokenKeys []string
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if alias := aliasedEnv(f); alias != "" {
				if err := f.Value.Set(alias); err != nil {
					brokenKeys = append(brokenKeys, f.Name)
				} else {
					f.Changed = true
				}
				return
			}
			if f.Changed || !vip.IsSet(f.Name) {
				return
			}
			value := vip.GetString(f.Name)
			if value == f.Value.String() {
				return
			}
			if err := f.Value.Set(value); err != nil {
				brokenKeys = append(brokenKeys, f.Name)
			} else {
				f.Changed = true
			}
		})

		// stdlib flags merged through AddGoFlagSet are not part of the
		// command's flag set, so they resolve separately.
		flag.VisitAll(func(f *flag.Flag) {
			if cmd.Flags().Lookup(f.Name) != nil {
				return
			}
			if !vip.IsSet(f.Name) {
				return
			}
			if err := f.Value.Set(vip.GetString(f.Name)); err != nil {
				brokenKeys = append(brokenKeys, f.Name)
			}
		})

		logger, err := NewLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		defer zap.ReplaceGlobals(logger)()
		defer zap.RedirectStdLog(logger)()

		for _, key := range brokenKeys {
			logger.Warn("Invalid configuration value for key, using default", zap.String("Key", key))
		}

		err = internalRun(cmd, args)
		if err != nil {
			logger.Error("Unrecoverable error", zap.Error(err))
			_ = logger.Sync()
			os.Exit(1)
		}
		return nil
	}
}

// aliasedEnv returns the value of the exact environment variable named by
// the flag's envalias annotation. Aliases let well-known names like
// REDIS_URL work without the HUBTIDE_ prefix.
func aliasedEnv(f *pflag.Flag) string {
	annotation := f.Annotations[cfgstruct.EnvAlias]
	if len(annotation) == 0 {
		return ""
	}
	return os.Getenv(annotation[0])
}
