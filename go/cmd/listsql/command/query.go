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

// QueryOutput is what the query command prints.
type QueryOutput struct {
	Columns []string `yaml:"columns"`
	Types   []string `yaml:"types"`
	Rows    [][]any  `yaml:"rows"`
}

// AddQueryCommand adds the query subcommand to the root command.
func AddQueryCommand(root *cobra.Command, lc *ListsqlCommand) {
	var maxRows int
	cmd := &cobra.Command{
		Use:   "query SQL [ARG...]",
		Short: "Run a query and print its rows",
		Long: `Run a query and print its columns and rows as YAML.

Each ARG binds one ? placeholder. NULL binds a null; integers and decimal
numbers bind as numbers; anything else binds as text.

Examples:
  listsql query "SELECT ID, Name FROM Sample.Person WHERE Age > ?" 30`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lc.runQuery(cmd, args[0], args[1:], maxRows)
		},
	}
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "Stop after this many rows; zero prints all.")
	root.AddCommand(cmd)
}

func (lc *ListsqlCommand) runQuery(cmd *cobra.Command, query string, rawArgs []string, maxRows int) error {
	ctx, cancel := lc.context(cmd)
	defer cancel()
	db := lc.openDB()
	defer db.Close()

	args := make([]any, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = parseArg(a)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	out := QueryOutput{Rows: [][]any{}}
	if out.Columns, err = rows.Columns(); err != nil {
		return err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return err
	}
	for _, t := range types {
		out.Types = append(out.Types, t.DatabaseTypeName())
	}

	for rows.Next() {
		if maxRows > 0 && len(out.Rows) == maxRows {
			break
		}
		row := make([]any, len(out.Columns))
		dest := make([]any, len(row))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		out.Rows = append(out.Rows, printableRow(row))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	lc.logger.DebugContext(ctx, "query done", "rows", len(out.Rows))
	return writeYAML(cmd.OutOrStdout(), out)
}
