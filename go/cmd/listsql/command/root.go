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

package command

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/multigres/listsql/go/client"
	"github.com/multigres/listsql/go/common/config"
	"github.com/multigres/listsql/go/driver"
	"github.com/multigres/listsql/go/tools/telemetry"
)

// ListsqlCommand holds the state shared by the listsql subcommands.
type ListsqlCommand struct {
	fs        afero.Fs
	loader    *config.Loader
	settings  *config.Settings
	logger    *slog.Logger
	telemetry *telemetry.Telemetry
	trace     bool
	timeout   time.Duration
}

// GetRootCommand creates the root command with all subcommands. Config
// files and file log outputs are opened on fs.
func GetRootCommand(fs afero.Fs) (*cobra.Command, *ListsqlCommand) {
	lc := &ListsqlCommand{
		fs:        fs,
		loader:    config.NewLoader(fs),
		telemetry: telemetry.NewTelemetry(),
	}

	var span trace.Span

	root := &cobra.Command{
		Use:   "listsql",
		Short: "Run statements against a typed-list SQL server",
		Long: `listsql connects to a typed-list SQL server, runs one statement and
prints the result as YAML.

Connection settings come from flags, LISTSQL_* environment variables and an
optional config file (listsql.yaml in the current directory by default).
Flags take precedence over the environment, which takes precedence over the
config file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := lc.setup(cmd); err != nil {
				return err
			}
			var out io.Writer
			if lc.trace {
				out = cmd.ErrOrStderr()
			}
			var err error
			if span, err = lc.telemetry.InitForCommand(cmd, out, true /* startSpan */); err != nil {
				return err
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if span != nil {
				span.End()
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lc.telemetry.ShutdownTelemetry(ctx); err != nil {
				return fmt.Errorf("failed to shutdown OpenTelemetry: %w", err)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	if err := lc.loader.RegisterFlags(flags); err != nil {
		panic(err)
	}
	flags.BoolVar(&lc.trace, "trace", false, "Write OpenTelemetry spans of the run to stderr.")
	flags.DurationVar(&lc.timeout, "timeout", 0, "Statement timeout; zero waits indefinitely.")

	AddQueryCommand(root, lc)
	AddExecCommand(root, lc)
	AddCallCommand(root, lc)
	AddPingCommand(root, lc)

	return root, lc
}

// setup loads settings and installs the logger.
func (lc *ListsqlCommand) setup(cmd *cobra.Command) error {
	settings, err := lc.loader.Load()
	if err != nil {
		return err
	}
	logger, err := settings.Logging.NewLogger(lc.fs, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	settings.Client.Logger = logger
	lc.settings = settings
	lc.logger = logger
	if file := lc.loader.ConfigFileUsed(); file != "" {
		logger.Debug("using config file", "file", file)
	}
	return nil
}

// context returns the command context bounded by --timeout.
func (lc *ListsqlCommand) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if lc.timeout > 0 {
		return context.WithTimeout(cmd.Context(), lc.timeout)
	}
	return context.WithCancel(cmd.Context())
}

// openDB opens a database/sql handle with a single connection.
func (lc *ListsqlCommand) openDB() *sql.DB {
	db := sql.OpenDB(driver.NewConnector(&lc.settings.Client))
	db.SetMaxOpenConns(1)
	return db
}

// connect opens a direct client connection.
func (lc *ListsqlCommand) connect(ctx context.Context) (*client.Conn, error) {
	return client.Connect(ctx, &lc.settings.Client)
}
