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
	"github.com/spf13/cobra"
)

// PingOutput is what the ping command prints.
type PingOutput struct {
	Address       string `yaml:"address"`
	ServerVersion string `yaml:"server_version"`
	AutoCommit    bool   `yaml:"autocommit"`
}

// AddPingCommand adds the ping subcommand to the root command.
func AddPingCommand(root *cobra.Command, lc *ListsqlCommand) {
	root.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Connect and print the server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := lc.context(cmd)
			defer cancel()
			conn, err := lc.connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			return writeYAML(cmd.OutOrStdout(), PingOutput{
				Address:       lc.settings.Client.Address(),
				ServerVersion: conn.ServerVersion(),
				AutoCommit:    conn.AutoCommit(),
			})
		},
	})
}
