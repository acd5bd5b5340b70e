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
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"

	"github.com/multigres/listsql/go/client"
	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/protocol"
	"github.com/multigres/listsql/go/common/sqltypes"
	"github.com/multigres/listsql/go/common/wire"
	"github.com/multigres/listsql/go/fakeserver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const peopleQuery = "SELECT ID, Name FROM People"

func people() *fakeserver.Result {
	return fakeserver.MakeResult(
		[]*sqltypes.Column{
			fakeserver.Col("ID", sqltypes.TypeInteger),
			fakeserver.Col("Name", sqltypes.TypeVarChar),
		},
		[]any{1, "alice"},
		[]any{2, "bob"},
		[]any{3, "carol"},
	)
}

func newServer(t *testing.T) *fakeserver.Server {
	t.Helper()
	s := fakeserver.New(t)
	t.Cleanup(s.Close)
	return s
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes the root command against s with args, reading files from fs.
func run(t *testing.T, fs afero.Fs, s *fakeserver.Server, args ...string) result {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := s.ClientConfig()
	root, _ := GetRootCommand(fs)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{
		"--host", cfg.Host,
		"--port", strconv.Itoa(cfg.Port),
		"--config-file-not-found-handling", "ignore",
	}, args...))
	err := root.ExecuteContext(context.Background())
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, yaml.Unmarshal([]byte(out), &v), out)
	return v
}

func TestQueryCommand(t *testing.T) {
	s := newServer(t)
	s.AddQuery(peopleQuery, people())

	res := run(t, afero.NewMemMapFs(), s, "query", peopleQuery)
	require.NoError(t, res.err)

	out := decode[QueryOutput](t, res.stdout)
	assert.Equal(t, []string{"ID", "Name"}, out.Columns)
	assert.Equal(t, []string{"INTEGER", "VARCHAR"}, out.Types)
	assert.Equal(t, [][]any{{1, "alice"}, {2, "bob"}, {3, "carol"}}, out.Rows)

	res = run(t, afero.NewMemMapFs(), s, "query", peopleQuery, "--max-rows", "2")
	require.NoError(t, res.err)
	assert.Len(t, decode[QueryOutput](t, res.stdout).Rows, 2)
}

func TestQueryCommandBindsArguments(t *testing.T) {
	s := newServer(t)
	q := "SELECT Name FROM People WHERE ID = ? AND Nick = ?"
	s.AddQuery(q, fakeserver.MakeResult([]*sqltypes.Column{fakeserver.Col("Name", sqltypes.TypeVarChar)}))

	res := run(t, afero.NewMemMapFs(), s, "query", q, "2", "NULL")
	require.NoError(t, res.err)
	assert.Empty(t, decode[QueryOutput](t, res.stdout).Rows)
	assert.Equal(t, [][]wire.Value{{wire.Int64(2), wire.Null()}}, s.LastParams(q))
}

func TestExecCommand(t *testing.T) {
	s := newServer(t)
	insert := "INSERT INTO People (ID, Name) VALUES (?, ?)"
	s.AddUpdate(insert, 1)
	s.SetGeneratedKey(wire.Int64(42))

	res := run(t, afero.NewMemMapFs(), s, "exec", insert, "4", "dave", "--last-insert-id")
	require.NoError(t, res.err)
	out := decode[ExecOutput](t, res.stdout)
	assert.Equal(t, int64(1), out.RowsAffected)
	require.NotNil(t, out.LastInsertID)
	assert.Equal(t, int64(42), *out.LastInsertID)
}

func TestCallCommand(t *testing.T) {
	s := newServer(t)
	s.AddProcedure(&fakeserver.Procedure{
		Name:       "Sample.Inc",
		ReturnType: protocol.ProcUpdateWithReturn,
		Params: []*sqltypes.Parameter{
			{Mode: sqltypes.ModeInput, Type: sqltypes.TypeInteger, Name: "A"},
			{Mode: sqltypes.ModeOutput, Type: sqltypes.TypeInteger, Name: "B"},
		},
		Handler: func(args []wire.Value) (*fakeserver.CallResult, error) {
			a := args[0].Int
			return &fakeserver.CallResult{
				Return:   wire.Int64(a + 1),
				Outputs:  map[int]wire.Value{1: wire.Int64(a * 2)},
				RowCount: 1,
			}, nil
		},
	})

	res := run(t, afero.NewMemMapFs(), s, "call", "Sample.Inc", "5", "OUT")
	require.NoError(t, res.err)
	out := decode[CallOutput](t, res.stdout)
	assert.Equal(t, []any{6, 5, 10}, out.Outputs)
	assert.Equal(t, []int64{1}, out.UpdateCounts)
	assert.False(t, out.Mismatch)
}

func TestPingCommand(t *testing.T) {
	s := newServer(t)

	res := run(t, afero.NewMemMapFs(), s, "ping")
	require.NoError(t, res.err)
	out := decode[PingOutput](t, res.stdout)
	assert.Equal(t, s.Address(), out.Address)
	assert.Equal(t, "fakeserver 1.0", out.ServerVersion)
	assert.True(t, out.AutoCommit)
}

func TestServerErrorIsReturned(t *testing.T) {
	s := newServer(t)
	s.AddRejectedQuery(peopleQuery, fakeserver.CodeUniqueViolation, "duplicate key")

	res := run(t, afero.NewMemMapFs(), s, "query", peopleQuery)
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, dberrors.ErrIntegrity)
	assert.Empty(t, res.stdout)
}

func TestConfigFileAndLogging(t *testing.T) {
	s := newServer(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/listsql.yaml", []byte(`
namespace: SAMPLES
autocommit: false
log_level: debug
log_format: json
log_output: /var/log/listsql.log
`), 0o644))

	res := run(t, fs, s, "--config-file", "/etc/listsql.yaml", "ping")
	require.NoError(t, res.err)
	assert.False(t, decode[PingOutput](t, res.stdout).AutoCommit)
	// The switch off autocommit at connect time.
	assert.Equal(t, 1, s.OpCount(protocol.OpAutoCommit))

	logs, err := afero.ReadFile(fs, "/var/log/listsql.log")
	require.NoError(t, err)
	assert.Contains(t, string(logs), `"msg":"connected"`)
	assert.Contains(t, string(logs), `"file":"/etc/listsql.yaml"`)
}

func TestTraceFlag(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	s := newServer(t)
	s.AddQuery(peopleQuery, people())

	res := run(t, afero.NewMemMapFs(), s, "--trace", "query", peopleQuery)
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, `"Name": "query"`)
	assert.Contains(t, res.stderr, `"Name": "EXECUTE listsql"`)
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"null", nil},
		{"alice", "alice"},
		{"NaN", "NaN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseArg(tt.in), tt.in)
	}
	assert.Equal(t, decimal.RequireFromString("1.50"), parseArg("1.50"))
}

func TestParseCallArg(t *testing.T) {
	assert.Equal(t, client.Out(sqltypes.TypeUnknown), parseCallArg("out"))
	assert.Equal(t, client.Default, parseCallArg("DEFAULT"))
	assert.Equal(t, client.InOut(int64(3)), parseCallArg("INOUT:3"))
	assert.Equal(t, "INOUT:", parseCallArg("INOUT:"))
	assert.Equal(t, int64(9), parseCallArg("9"))
}
