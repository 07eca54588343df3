// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package cfgstruct

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubtide/hubtide/pkg/memory"
)

func TestBind(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.PanicOnError)

	var config struct {
		String   string        `default:"dev" help:"a string"`
		Bool     bool          `default:"false" help:"a bool"`
		Int64    int64         `default:"1" help:"an int64"`
		Uint64   uint64        `default:"1" help:"a uint64"`
		Duration time.Duration `default:"1h" help:"a duration"`
		Float64  float64       `default:"5.5" help:"a float"`
		Size     memory.Size   `default:"10.00 MB" help:"a size"`
		Struct   struct {
			AnotherString string `default:"" help:"a nested string"`
		}
		Fields [2]struct {
			AnotherInt int `default:"0" help:"an indexed int"`
		}
	}

	Bind(flags, &config)

	assert.Equal(t, "dev", config.String)
	assert.Equal(t, int64(1), config.Int64)
	assert.Equal(t, time.Hour, config.Duration)
	assert.Equal(t, 10*memory.MB, config.Size)

	require.NoError(t, flags.Set("string", "value"))
	require.NoError(t, flags.Set("duration", "5m"))
	require.NoError(t, flags.Set("size", "1GiB"))
	require.NoError(t, flags.Set("struct.another-string", "nested"))

	assert.Equal(t, "value", config.String)
	assert.Equal(t, 5*time.Minute, config.Duration)
	assert.Equal(t, memory.GiB, config.Size)
	assert.Equal(t, "nested", config.Struct.AnotherString)
}

func TestBind_ConfDirExpansion(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.PanicOnError)

	var config struct {
		Path string `default:"$CONFDIR/kv.db" help:"a path"`
	}
	Bind(flags, &config, ConfDir("/tmp/conf"))

	assert.Equal(t, "/tmp/conf/kv.db", config.Path)
}

func TestBind_DevDefaults(t *testing.T) {
	var config struct {
		Value string `default:"release" devDefault:"dev" help:"a value"`
	}

	flags := pflag.NewFlagSet("test", pflag.PanicOnError)
	Bind(flags, &config)
	assert.Equal(t, "release", config.Value)

	flags = pflag.NewFlagSet("test", pflag.PanicOnError)
	Bind(flags, &config, UseDevDefaults())
	assert.Equal(t, "dev", config.Value)
}

func TestBind_Annotations(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.PanicOnError)

	var config struct {
		Token    string `default:"" help:"a token" env:"API_TOKEN"`
		Identity string `default:"" help:"an identity" user:"true"`
		Internal string `internal:"true"`
	}
	Bind(flags, &config)

	token := flags.Lookup("token")
	require.NotNil(t, token)
	require.Equal(t, []string{"API_TOKEN"}, token.Annotations[EnvAlias])

	identity := flags.Lookup("identity")
	require.NotNil(t, identity)
	require.Equal(t, []string{"true"}, identity.Annotations["user"])

	require.Nil(t, flags.Lookup("internal"))
}

func TestBind_SetupFields(t *testing.T) {
	var config struct {
		Interactive bool   `default:"true" help:"setup only" setup:"true"`
		Value       string `default:"x" help:"always bound"`
	}

	flags := pflag.NewFlagSet("test", pflag.PanicOnError)
	Bind(flags, &config)
	require.Nil(t, flags.Lookup("interactive"))
	require.NotNil(t, flags.Lookup("value"))

	flags = pflag.NewFlagSet("test", pflag.PanicOnError)
	Bind(flags, &config, SetupMode())
	interactive := flags.Lookup("interactive")
	require.NotNil(t, interactive)
	require.Equal(t, []string{"true"}, interactive.Annotations["setup"])

	// regular fields carry no setup annotation, they belong in config files
	require.Nil(t, flags.Lookup("value").Annotations["setup"])
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "server_address", snakeCase("ServerAddress"))
	assert.Equal(t, "api_token", snakeCase("APIToken"))
	assert.Equal(t, "max_size", snakeCase("MaxSize"))
	assert.Equal(t, "id", snakeCase("ID"))
}
