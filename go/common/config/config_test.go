// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/listsql/go/common/protocol"
)

// newLoader returns a loader over fs with flags parsed from args.
func newLoader(t *testing.T, fs afero.Fs, args ...string) *Loader {
	t.Helper()
	l := NewLoader(fs)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, l.RegisterFlags(flags))
	require.NoError(t, flags.Parse(args))
	return l
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestDefaults(t *testing.T) {
	s, err := newLoader(t, afero.NewMemMapFs()).Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", s.Client.Host)
	assert.Equal(t, protocol.DefaultPort, s.Client.Port)
	assert.Equal(t, "USER", s.Client.Namespace)
	assert.Equal(t, 10*time.Second, s.Client.DialTimeout)
	assert.Equal(t, protocol.DefaultCacheSize, s.Client.CacheSize)
	assert.Equal(t, protocol.DefaultInlineThreshold, s.Client.InlineThreshold)
	assert.True(t, s.Client.AutoCommit)
	assert.False(t, s.Client.ParameterizeLiterals)
	assert.Equal(t, Logging{Level: "info", Format: "text", Output: "stderr"}, s.Logging)
}

func TestConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/listsql/prod.yaml", `
host: db.example.com
port: 1973
namespace: SAMPLES
dial_timeout: 2s
cache_size: 10
autocommit: false
log_level: debug
`)
	l := newLoader(t, fs, "--config-file", "/etc/listsql/prod.yaml")
	s, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "/etc/listsql/prod.yaml", l.ConfigFileUsed())
	assert.Equal(t, "db.example.com", s.Client.Host)
	assert.Equal(t, 1973, s.Client.Port)
	assert.Equal(t, "SAMPLES", s.Client.Namespace)
	assert.Equal(t, 2*time.Second, s.Client.DialTimeout)
	assert.Equal(t, 10, s.Client.CacheSize)
	assert.False(t, s.Client.AutoCommit)
	assert.Equal(t, "debug", s.Logging.Level)
}

func TestConfigSearchPaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/home/app/listsql.json", `{"user": "app", "fetch_size": 100}`)

	s, err := newLoader(t, fs, "--config-paths", "/missing,/home/app").Load()
	require.NoError(t, err)
	assert.Equal(t, "app", s.Client.User)
	assert.Equal(t, 100, s.Client.FetchSize)
}

func TestPrecedence(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/cfg.toml", "cache_size = 10\nhost = \"file\"\n")
	t.Setenv("LISTSQL_CACHE_SIZE", "20")
	t.Setenv("LISTSQL_PARAMETERIZE_LITERALS", "true")

	s, err := newLoader(t, fs, "--config-file", "/cfg.toml").Load()
	require.NoError(t, err)
	assert.Equal(t, 20, s.Client.CacheSize, "environment beats file")
	assert.Equal(t, "file", s.Client.Host, "file beats default")
	assert.True(t, s.Client.ParameterizeLiterals)

	s, err = newLoader(t, fs, "--config-file", "/cfg.toml", "--cache-size", "30").Load()
	require.NoError(t, err)
	assert.Equal(t, 30, s.Client.CacheSize, "flag beats environment")
}

func TestConfigFileNotFound(t *testing.T) {
	tests := []struct {
		handling string
		wantErr  bool
	}{
		{"ignore", false},
		{"warn", false},
		{"error", true},
	}
	for _, tt := range tests {
		t.Run(tt.handling, func(t *testing.T) {
			for _, args := range [][]string{
				{"--config-file", "/nowhere/listsql.yaml"},
				{"--config-name", "nowhere"},
			} {
				args = append(args, "--config-file-not-found-handling", tt.handling)
				_, err := newLoader(t, afero.NewMemMapFs(), args...).Load()
				if tt.wantErr {
					assert.Error(t, err, args)
				} else {
					assert.NoError(t, err, args)
				}
			}
		})
	}

	_, err := newLoader(t, afero.NewMemMapFs(), "--config-file-not-found-handling", "panic").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown handling name")
}

func TestMalformedConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/bad.yaml", "port: [1, 2\n")

	_, err := newLoader(t, fs, "--config-file", "/bad.yaml", "--config-file-not-found-handling", "ignore").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestGetConfigHandlingValue(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	cfg := `
foo: 2
baz: error
bar: sometimes
`
	require.NoError(t, v.ReadConfig(strings.NewReader(cfg)))

	l := &Loader{v: v}
	get := func(key string) (ConfigFileNotFoundHandling, error) {
		v.Set(keyConfigNotFound, v.Get(key))
		return l.notFoundHandling()
	}

	h, err := get("foo")
	require.NoError(t, err)
	assert.Equal(t, ErrorOnConfigFileNotFound, h)

	h, err = get("baz")
	require.NoError(t, err)
	assert.Equal(t, ErrorOnConfigFileNotFound, h)

	_, err = get("bar")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	fs := afero.NewMemMapFs()
	var stdout, stderr bytes.Buffer

	logger, err := Logging{Level: "warn", Format: "json", Output: "stdout"}.NewLogger(fs, &stdout, &stderr)
	require.NoError(t, err)
	logger.InfoContext(context.Background(), "hidden")
	logger.WarnContext(context.Background(), "shown", "key", "value")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), `"msg":"shown"`)
	assert.Contains(t, stdout.String(), `"key":"value"`)
	assert.Empty(t, stderr.String())

	logger, err = Logging{Level: "debug", Format: "text", Output: "/var/log/listsql.log"}.NewLogger(fs, &stdout, &stderr)
	require.NoError(t, err)
	logger.Debug("to file")
	data, err := afero.ReadFile(fs, "/var/log/listsql.log")
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=\"to file\"")

	_, err = Logging{Level: "loud"}.NewLogger(fs, &stdout, &stderr)
	assert.Error(t, err)
	_, err = Logging{Level: "info", Format: "xml"}.NewLogger(fs, &stdout, &stderr)
	assert.Error(t, err)
}
