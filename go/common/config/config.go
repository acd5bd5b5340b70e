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

// Package config loads client settings from command-line flags, LISTSQL_*
// environment variables and an optional YAML, JSON or TOML file, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/multigres/listsql/go/client"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/tools/telemetry"
)

// EnvPrefix prefixes the environment variable of every setting, e.g.
// LISTSQL_CACHE_SIZE.
const EnvPrefix = "LISTSQL"

const (
	keyConfigFile     = "config_file"
	keyConfigName     = "config_name"
	keyConfigPaths    = "config_paths"
	keyConfigNotFound = "config_file_not_found_handling"
	keyPasswordFile   = "password_file"
)

// setting is one key with its flag. The default's type picks the flag type.
type setting struct {
	key   string
	def   any
	usage string
}

var settings = []setting{
	{"host", "localhost", "Server hostname or IP address."},
	{"port", protocol.DefaultPort, "Server port."},
	{"namespace", "USER", "Server namespace to attach to."},
	{"user", "", "User name."},
	{"password", "", "Password."},
	{keyPasswordFile, "", "Password file consulted when no password is set (host:port:namespace:user:password lines)."},
	{"dial_timeout", 10 * time.Second, "Timeout for establishing the connection."},
	{"cache_size", protocol.DefaultCacheSize, "Statement cache capacity; negative disables caching."},
	{"inline_threshold", protocol.DefaultInlineThreshold, "Largest long value sent inline instead of as a stream."},
	{"stream_chunk_size", protocol.DefaultStreamChunkSize, "Stream upload and download frame size."},
	{"fetch_size", 1, "Default number of rows returned by fetch-many."},
	{"autocommit", true, "Commit after every statement."},
	{"parameterize_literals", false, "Send comparison literals as parameters so similar statements share a cache entry."},
	{"client_name", "listsql-cli", "Name reported to the server."},
	{"log_level", "info", "Log level (debug, info, warn, error)."},
	{"log_format", "text", "Log format (json, text)."},
	{"log_output", "stderr", "Log output (stdout, stderr, or file path)."},
	{keyConfigFile, "", "Full path of the config file (with extension). If set, --config-name and --config-paths are ignored."},
	{keyConfigName, "listsql", "Name of the config file (without extension) to search for."},
	{keyConfigPaths, []string{"."}, "Paths to search for config files in."},
	{keyConfigNotFound, "warn", "Behavior when a config file is not found (ignore, warn, error)."},
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// Settings is everything Load produces.
type Settings struct {
	Client  client.Config `mapstructure:",squash"`
	Logging Logging       `mapstructure:",squash"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `mapstructure:"log_level"`
	Format string `mapstructure:"log_format"`
	Output string `mapstructure:"log_output"`
}

// Loader reads settings. Each Loader has its own viper instance, so tests
// and commands do not share state.
type Loader struct {
	v  *viper.Viper
	fs afero.Fs
}

// NewLoader creates a loader reading config files from fs.
func NewLoader(fs afero.Fs) *Loader {
	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
	}
	return &Loader{v: v, fs: fs}
}

// RegisterFlags installs one flag per setting and binds it.
func (l *Loader) RegisterFlags(fs *pflag.FlagSet) error {
	for _, s := range settings {
		name := flagName(s.key)
		switch def := s.def.(type) {
		case string:
			fs.String(name, def, s.usage)
		case int:
			fs.Int(name, def, s.usage)
		case bool:
			fs.Bool(name, def, s.usage)
		case time.Duration:
			fs.Duration(name, def, s.usage)
		case []string:
			fs.StringSlice(name, def, s.usage)
		default:
			return fmt.Errorf("setting %s: unsupported default %T", s.key, s.def)
		}
		if err := l.v.BindPFlag(s.key, fs.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the config file, if any, and decodes every setting.
func (l *Loader) Load() (*Settings, error) {
	if err := l.readConfigFile(); err != nil {
		return nil, err
	}
	var s Settings
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := l.v.Unmarshal(&s, hook); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if path := l.v.GetString(keyPasswordFile); path != "" && s.Client.Password == "" {
		password, err := LookupPassword(l.fs, path, &s.Client)
		if err != nil {
			return nil, fmt.Errorf("failed to read password file %s: %w", path, err)
		}
		s.Client.Password = password
	}
	return &s, nil
}

// ConfigFileUsed returns the config file Load read, or "".
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) readConfigFile() error {
	if file := l.v.GetString(keyConfigFile); file != "" {
		l.v.SetConfigFile(file)
	} else {
		l.v.SetConfigName(l.v.GetString(keyConfigName))
		for _, path := range l.v.GetStringSlice(keyConfigPaths) {
			l.v.AddConfigPath(path)
		}
	}

	err := l.v.ReadInConfig()
	if err == nil {
		slog.Debug("loaded config file", "file", l.v.ConfigFileUsed())
		return nil
	}
	if !isConfigFileNotFoundError(err) {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	handling, herr := l.notFoundHandling()
	if herr != nil {
		return herr
	}
	switch handling {
	case IgnoreConfigFileNotFound:
		return nil
	case WarnOnConfigFileNotFound:
		slog.Warn("config file not found, using flags and environment only", "error", err)
		return nil
	default:
		return fmt.Errorf("config file not found: %w", err)
	}
}

func (l *Loader) notFoundHandling() (ConfigFileNotFoundHandling, error) {
	var h ConfigFileNotFoundHandling
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(decodeHandlingValue))
	if err := l.v.UnmarshalKey(keyConfigNotFound, &h, hook); err != nil {
		return h, fmt.Errorf("failed to decode %s: %w", keyConfigNotFound, err)
	}
	return h, nil
}

// isConfigFileNotFoundError checks if the error is caused because the file wasn't found.
func isConfigFileNotFoundError(err error) bool {
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		return true
	}
	return errors.Is(err, os.ErrNotExist)
}

// NewLogger builds the process logger. stdout and stderr stand for the
// process streams; any other output is a file path opened on fs. Records
// carry the trace and span ids of the context they are logged with.
func (lg Logging) NewLogger(fs afero.Fs, stdout, stderr io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lg.Level, err)
	}

	var output io.Writer
	switch strings.ToLower(lg.Output) {
	case "", "stderr":
		output = stderr
	case "stdout":
		output = stdout
	default:
		file, err := fs.OpenFile(lg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output: %w", err)
		}
		output = file
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(lg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(output, opts)
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q", lg.Format)
	}
	return slog.New(telemetry.WrapSlogHandler(handler)), nil
}
