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
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/multigres/listsql/go/client"
)

// ErrNoPasswordEntry is returned when no password file line matches the
// connection.
var ErrNoPasswordEntry = errors.New("no matching entry in password file")

// LookupPassword returns the password for cfg from a password file. Each
// line has the form host:port:namespace:user:password, where any of the
// first four fields may be "*". The first matching line wins. Everything
// after the fourth colon is the password, so passwords may contain colons.
// The file must not be readable by group or others.
func LookupPassword(fs afero.Fs, path string, cfg *client.Config) (string, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return "", err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return "", fmt.Errorf("invalid password file permissions: must be 0600 (current: %04o)", perm)
	}

	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", err
	}

	want := [4]string{cfg.Host, strconv.Itoa(cfg.Port), cfg.Namespace, cfg.User}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 5)
		if len(parts) != 5 {
			continue
		}
		if matchFields(parts[:4], want) {
			return parts[4], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", ErrNoPasswordEntry
}

func matchFields(fields []string, want [4]string) bool {
	for i, f := range fields {
		if f != "*" && f != want[i] {
			return false
		}
	}
	return true
}
