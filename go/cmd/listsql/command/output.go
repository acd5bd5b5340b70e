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
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/multigres/listsql/go/client"
	"github.com/multigres/listsql/go/common/sqltypes"
)

// parseArg turns a command-line argument into a statement value. NULL is
// nil; integers and decimals are numbers; everything else is text.
func parseArg(s string) any {
	if strings.EqualFold(s, "NULL") {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d
	}
	return s
}

// parseCallArg also understands the procedure markers OUT, DEFAULT and
// INOUT:<value>.
func parseCallArg(s string) any {
	switch {
	case strings.EqualFold(s, "OUT"):
		return client.Out(sqltypes.TypeUnknown)
	case strings.EqualFold(s, "DEFAULT"):
		return client.Default
	case len(s) > len("INOUT:") && strings.EqualFold(s[:len("INOUT:")], "INOUT:"):
		return client.InOut(parseArg(s[len("INOUT:"):]))
	}
	return parseArg(s)
}

// printable converts a value to something YAML renders readably.
func printable(v any) any {
	switch x := v.(type) {
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return fmt.Sprintf("0x%x", x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}
	return v
}

func printableRow(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = printable(v)
	}
	return out
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
