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

// ExecOutput is what the exec command prints.
type ExecOutput struct {
	RowsAffected int64  `yaml:"rows_affected"`
	LastInsertID *int64 `yaml:"last_insert_id,omitempty"`
}

// AddExecCommand adds the exec subcommand to the root command.
func AddExecCommand(root *cobra.Command, lc *ListsqlCommand) {
	var lastInsertID bool
	cmd := &cobra.Command{
		Use:   "exec SQL [ARG...]",
		Short: "Run an update or DDL statement",
		Long: `Run a statement that returns no rows and print the affected row count.

Arguments bind placeholders as for the query command.

Examples:
  listsql exec "INSERT INTO Sample.Person (Name, Age) VALUES (?, ?)" alice 31 --last-insert-id`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lc.runExec(cmd, args[0], args[1:], lastInsertID)
		},
	}
	cmd.Flags().BoolVar(&lastInsertID, "last-insert-id", false, "Also print the key generated by an insert.")
	root.AddCommand(cmd)
}

func (lc *ListsqlCommand) runExec(cmd *cobra.Command, query string, rawArgs []string, lastInsertID bool) error {
	ctx, cancel := lc.context(cmd)
	defer cancel()
	db := lc.openDB()
	defer db.Close()

	args := make([]any, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = parseArg(a)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	var out ExecOutput
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return err
	}
	if lastInsertID {
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		out.LastInsertID = &id
	}
	return writeYAML(cmd.OutOrStdout(), out)
}
