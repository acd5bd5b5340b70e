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
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ConfigFileNotFoundHandling controls how Load treats a config file that
// cannot be found. Other read errors always fail.
type ConfigFileNotFoundHandling int

const (
	// IgnoreConfigFileNotFound proceeds silently with flags, environment and
	// defaults.
	IgnoreConfigFileNotFound ConfigFileNotFoundHandling = iota
	// WarnOnConfigFileNotFound logs a warning and proceeds.
	WarnOnConfigFileNotFound
	// ErrorOnConfigFileNotFound makes Load return the error.
	ErrorOnConfigFileNotFound
)

var (
	handlingNames         []string
	handlingNamesToValues = map[string]ConfigFileNotFoundHandling{
		"ignore": IgnoreConfigFileNotFound,
		"warn":   WarnOnConfigFileNotFound,
		"error":  ErrorOnConfigFileNotFound,
	}
)

func init() {
	for name := range handlingNamesToValues {
		handlingNames = append(handlingNames, name)
	}
	sort.Strings(handlingNames)
}

// Set parses a handling name.
func (h *ConfigFileNotFoundHandling) Set(arg string) error {
	if v, ok := handlingNamesToValues[strings.ToLower(arg)]; ok {
		*h = v
		return nil
	}
	return fmt.Errorf("unknown handling name %q (options: %s)", arg, strings.Join(handlingNames, ", "))
}

func (h ConfigFileNotFoundHandling) String() string {
	for name, v := range handlingNamesToValues {
		if v == h {
			return name
		}
	}
	return "<UNKNOWN>"
}

func decodeHandlingValue(from, to reflect.Type, data any) (any, error) {
	var h ConfigFileNotFoundHandling
	if to != reflect.TypeOf(h) {
		return data, nil
	}

	switch {
	case from == reflect.TypeOf(h):
		return data, nil
	case from.Kind() == reflect.Int:
		return ConfigFileNotFoundHandling(data.(int)), nil
	case from.Kind() == reflect.String:
		err := h.Set(data.(string))
		return h, err
	}
	return data, fmt.Errorf("invalid value for ConfigFileNotFoundHandling: %v", data)
}
