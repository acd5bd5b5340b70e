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
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multigres/listsql/go/client"
)

const passfile = `# listsql passwords
db1:1972:SAMPLES:app:first
*:*:USER:app:sec:ret
*:*:*:*:fallback
`

func TestLookupPassword(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/pass", []byte(passfile), 0o600))

	tests := []struct {
		name string
		cfg  client.Config
		want string
	}{
		{"exact", client.Config{Host: "db1", Port: 1972, Namespace: "SAMPLES", User: "app"}, "first"},
		{"wildcard host and colon in password", client.Config{Host: "db2", Port: 1, Namespace: "USER", User: "app"}, "sec:ret"},
		{"catch all", client.Config{Host: "db1", Port: 1972, Namespace: "SAMPLES", User: "other"}, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LookupPassword(fs, "/pass", &tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupPasswordNoEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/pass", []byte("db1:1972:USER:app:x\n"), 0o600))

	_, err := LookupPassword(fs, "/pass", &client.Config{Host: "db1", Port: 1972, Namespace: "USER", User: "bob"})
	assert.ErrorIs(t, err, ErrNoPasswordEntry)
}

func TestLookupPasswordPermissions(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/pass", []byte("*:*:*:*:x\n"), 0o644))

	_, err := LookupPassword(fs, "/pass", &client.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 0600")
}

func TestLoadReadsPasswordFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/pass", []byte("*:*:*:app:from-file\n"), 0o600))

	s, err := newLoader(t, fs, "--user", "app", "--password-file", "/pass").Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", s.Client.Password)

	s, err = newLoader(t, fs, "--user", "app", "--password", "explicit", "--password-file", "/pass").Load()
	require.NoError(t, err)
	assert.Equal(t, "explicit", s.Client.Password, "an explicit password wins")

	_, err = newLoader(t, fs, "--user", "app", "--password-file", "/missing").Load()
	assert.Error(t, err)
}
