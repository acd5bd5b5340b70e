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

// CallOutput is what the call command prints.
type CallOutput struct {
	Outputs      []any         `yaml:"outputs"`
	ResultSets   []QueryOutput `yaml:"result_sets,omitempty"`
	UpdateCounts []int64       `yaml:"update_counts,omitempty"`
	Mismatch     bool          `yaml:"parameter_mismatch,omitempty"`
}

// AddCallCommand adds the call subcommand to the root command.
func AddCallCommand(root *cobra.Command, lc *ListsqlCommand) {
	cmd := &cobra.Command{
		Use:   "call PROCEDURE [ARG...]",
		Short: "Call a stored procedure",
		Long: `Call a stored procedure with one placeholder per ARG and print its
outputs, result sets and update counts.

Besides the values the query command accepts, an ARG may be OUT for an
output argument, INOUT:<value> for an input-output argument, or DEFAULT to
let the procedure use its default. The outputs start with the return value
when the procedure has one.

Examples:
  listsql call Sample.Inc 5 OUT`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lc.runCall(cmd, args[0], args[1:])
		},
	}
	root.AddCommand(cmd)
}

func (lc *ListsqlCommand) runCall(cmd *cobra.Command, name string, rawArgs []string) error {
	ctx, cancel := lc.context(cmd)
	defer cancel()
	conn, err := lc.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := make([]any, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = parseCallArg(a)
	}
	cur := conn.Cursor()
	defer cur.Close()
	res, err := cur.Callproc(ctx, name, args...)
	if err != nil {
		return err
	}

	out := CallOutput{
		Outputs:      printableRow(res.Outputs),
		UpdateCounts: res.UpdateCounts,
		Mismatch:     cur.ParameterMismatch(),
	}
	for _, rs := range res.ResultSets {
		qo := QueryOutput{Rows: [][]any{}}
		for _, col := range rs.Columns {
			qo.Columns = append(qo.Columns, col.Name)
			qo.Types = append(qo.Types, col.Type.String())
		}
		for _, row := range rs.Rows {
			qo.Rows = append(qo.Rows, printableRow(row))
		}
		out.ResultSets = append(out.ResultSets, qo)
	}
	if !conn.AutoCommit() {
		if err := conn.Commit(ctx); err != nil {
			return err
		}
	}
	return writeYAML(cmd.OutOrStdout(), out)
}
