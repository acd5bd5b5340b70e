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

package driver

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"

	"github.com/multigres/listsql/go/client"
	"github.com/multigres/listsql/go/common/dberrors"
	"github.com/multigres/listsql/go/common/sqltypes"
)

// outArg is an sql.Out argument waiting for its procedure output.
type outArg struct {
	index int
	dest  any
}

// bindArgs converts database/sql arguments to cursor arguments. sql.Out
// becomes an output or input-output marker.
func bindArgs(args []driver.NamedValue) ([]any, []outArg, error) {
	values := make([]any, len(args))
	var outs []outArg
	for i, nv := range args {
		if nv.Name != "" {
			return nil, nil, dberrors.Interfacef("named parameter %q is not supported", nv.Name)
		}
		o, ok := nv.Value.(sql.Out)
		if !ok {
			values[i] = nv.Value
			continue
		}
		if o.In {
			values[i] = client.InOut(reflect.ValueOf(o.Dest).Elem().Interface())
		} else {
			values[i] = client.Out(sqltypes.TypeUnknown)
		}
		outs = append(outs, outArg{index: i, dest: o.Dest})
	}
	return values, outs, nil
}

func checkOut(o sql.Out) error {
	rv := reflect.ValueOf(o.Dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return dberrors.Interfacef("sql.Out destination must be a non-nil pointer, not %T", o.Dest)
	}
	if o.In {
		if err := sqltypes.Validate(rv.Elem().Interface()); err != nil {
			return dberrors.Interfacef("sql.Out input: %v", err)
		}
	}
	return nil
}

// assignOutputs stores procedure outputs into sql.Out destinations.
func assignOutputs(cur *client.Cursor, outs []outArg) error {
	outputs := cur.OutputParameters()
	offset := 0
	if cur.HasReturnValue() {
		offset = 1
	}
	for _, o := range outs {
		i := offset + o.index
		if i >= len(outputs) {
			return dberrors.Interfacef("procedure returned no value for argument %d", o.index+1)
		}
		if err := assign(o.dest, outputs[i]); err != nil {
			return dberrors.Interfacef("argument %d: %v", o.index+1, err)
		}
	}
	return nil
}

// assign stores v into the pointer dest. Numeric values convert between
// numeric kinds; anything can be stored as a string.
func assign(dest, v any) error {
	if s, ok := dest.(sql.Scanner); ok {
		return s.Scan(driverValue(v))
	}
	dv := reflect.ValueOf(dest).Elem()
	if v == nil {
		dv.SetZero()
		return nil
	}
	sv := reflect.ValueOf(v)
	switch {
	case sv.Type().AssignableTo(dv.Type()):
		dv.Set(sv)
	case isNumeric(sv.Kind()) && isNumeric(dv.Kind()):
		dv.Set(sv.Convert(dv.Type()))
	case dv.Kind() == reflect.String:
		dv.SetString(fmt.Sprint(driverValue(v)))
	default:
		return fmt.Errorf("cannot store %T in %s", v, dv.Type())
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// driverValue narrows a decoded value to the driver.Value types. Decimals,
// GUIDs and times of day become their string forms.
func driverValue(v any) driver.Value {
	switch x := v.(type) {
	case nil, int64, float64, bool, []byte, string, time.Time:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
