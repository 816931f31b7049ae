// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"errors"
	"testing"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/resolve"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func TestLoadProject(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/web/package.json": `{"name": "web"}`,
		"/web/tsconfig.json": `{
  // comments are allowed
  "compilerOptions": { "baseUrl": ".", "paths": { "@/*": ["src/*"] } },
}`,
		"/web/compgraph.yaml": "exclude:\n  - \"**/*.stories.tsx\"\nsources:\n  - \"@acme/ui\"\nrole: consumer\n",
	})

	p, err := LoadProject(fs, "/web/", RoleSource, WithExclude("**/*.test.tsx"))
	require.NoError(t, err)
	assert.Equal(t, "web", p.Name)
	assert.Equal(t, "/web", p.Root)
	assert.Equal(t, RoleConsumer, p.Role)
	assert.Equal(t, []string{"@acme/ui"}, p.Sources)
	assert.Equal(t, []string{"**/*.test.tsx", "**/*.stories.tsx"}, p.Exclude)
	assert.False(t, p.Aliases.IsEmpty())
}

func TestLoadProject_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/anon/package.json": `{"version": "1.0.0"}`,
	})

	_, err := LoadProject(fs, "/anon", RoleSource)
	assert.ErrorIs(t, err, ErrMissingProjectName)

	_, err = LoadProject(fs, "/nowhere", RoleSource)
	assert.ErrorIs(t, err, ErrMissingProjectName)
}

func hasConfigError(p *Project, target error) bool {
	for _, err := range p.ConfigErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func TestLoadProject_ConfigFallbacks(t *testing.T) {
	tests := []struct {
		name        string
		files       map[string]string
		opts        []ProjectOption
		wantErr     error
		wantRole    Role
		wantInclude []string
		wantExclude []string
		wantAliases bool
	}{
		{
			name:     "malformed overrides",
			files:    map[string]string{"/p/compgraph.yaml": "include: [unterminated"},
			wantErr:  ErrInvalidOverrides,
			wantRole: RoleSource,
		},
		{
			// The rest of the overrides still apply.
			name:        "unknown role",
			files:       map[string]string{"/p/compgraph.yaml": "role: owner\nexclude:\n  - \"**/*.test.tsx\"\n"},
			wantErr:     ErrInvalidOverrides,
			wantRole:    RoleSource,
			wantExclude: []string{"**/*.test.tsx"},
		},
		{
			name:     "broken alias config",
			files:    map[string]string{"/p/tsconfig.json": `{ not json`},
			wantErr:  resolve.ErrInvalidConfig,
			wantRole: RoleSource,
		},
		{
			name:     "only include is malformed",
			opts:     []ProjectOption{WithInclude("src/[*.tsx")},
			wantErr:  ErrInvalidGlob,
			wantRole: RoleSource,
		},
		{
			name:        "malformed include among valid ones",
			opts:        []ProjectOption{WithInclude("src/**/*.tsx", "src/[*.tsx")},
			wantErr:     ErrInvalidGlob,
			wantRole:    RoleSource,
			wantInclude: []string{"src/**/*.tsx"},
		},
		{
			name:        "malformed exclude from overrides",
			files:       map[string]string{"/p/compgraph.yaml": "exclude:\n  - \"[\"\n  - \"**/*.stories.tsx\"\n"},
			wantErr:     ErrInvalidGlob,
			wantRole:    RoleSource,
			wantExclude: []string{"**/*.stories.tsx"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFiles(t, fs, map[string]string{"/p/package.json": `{"name": "p"}`})
			writeFiles(t, fs, tt.files)

			p, err := LoadProject(fs, "/p", RoleSource, tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, "p", p.Name)
			assert.Equal(t, tt.wantRole, p.Role)
			assert.Equal(t, tt.wantInclude, p.Include)
			assert.Equal(t, tt.wantExclude, p.Exclude)
			assert.Equal(t, tt.wantAliases, !p.Aliases.IsEmpty())
			require.Len(t, p.ConfigErrors, 1)
			assert.True(t, hasConfigError(p, tt.wantErr), "got %v", p.ConfigErrors)
		})
	}
}

func TestLoadProject_CleanConfigHasNoErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/p/package.json": `{"name": "p"}`})

	p, err := LoadProject(fs, "/p", RoleSource, WithInclude("src/**"))
	require.NoError(t, err)
	assert.Empty(t, p.ConfigErrors)
	assert.Equal(t, []string{"src/**"}, p.Include)
}

func TestLoadProjects_CollectsErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/a/package.json": `{"name": "a"}`,
		"/c/package.json": `{"name": "c"}`,
	})

	projects, errs := LoadProjects(fs, []string{"/a", "/b", "/c"}, RoleSource)
	require.Len(t, projects, 2)
	assert.Equal(t, "a", projects[0].Name)
	assert.Equal(t, "c", projects[1].Name)
	require.Len(t, errs, 1)
	assert.Equal(t, "/b", errs[0].Root)
	assert.ErrorIs(t, errs[0], ErrMissingProjectName)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("consumer")
	require.NoError(t, err)
	assert.Equal(t, RoleConsumer, r)
	assert.Equal(t, "consumer", r.String())

	r, err = ParseRole("source")
	require.NoError(t, err)
	assert.Equal(t, "source", r.String())

	_, err = ParseRole("producer")
	assert.Error(t, err)
}

func TestDiscoverWorkspace(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  []string
	}{
		{
			name: "array form",
			files: map[string]string{
				"/r/package.json":            `{"name": "r", "workspaces": ["packages/*"]}`,
				"/r/packages/a/package.json": `{"name": "a"}`,
				"/r/packages/b/package.json": `{"name": "b"}`,
				"/r/packages/docs/README.md": `no manifest`,
			},
			want: []string{"/r/packages/a", "/r/packages/b"},
		},
		{
			name: "object form with negation",
			files: map[string]string{
				"/r/package.json":                `{"name": "r", "workspaces": {"packages": ["packages/*", "!packages/legacy"]}}`,
				"/r/packages/a/package.json":      `{"name": "a"}`,
				"/r/packages/legacy/package.json": `{"name": "legacy"}`,
			},
			want: []string{"/r/packages/a"},
		},
		{
			name: "pnpm with double star",
			files: map[string]string{
				"/r/package.json":                `{"name": "r"}`,
				"/r/pnpm-workspace.yaml":         "packages:\n  - 'apps/**'\n",
				"/r/apps/web/package.json":       `{"name": "web"}`,
				"/r/apps/tools/cli/package.json": `{"name": "cli"}`,
			},
			want: []string{"/r/apps/tools/cli", "/r/apps/web"},
		},
		{
			name:  "no workspace",
			files: map[string]string{"/r/package.json": `{"name": "r"}`},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFiles(t, fs, tt.files)
			got, err := DiscoverWorkspace(fs, "/r")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscoverWorkspace_MalformedGlob(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/r/package.json":            `{"name": "r", "workspaces": ["packages/[*", "packages/*", "![legacy"]}`,
		"/r/packages/a/package.json": `{"name": "a"}`,
		"/r/packages/b/package.json": `{"name": "b"}`,
	})

	got, err := DiscoverWorkspace(fs, "/r")
	assert.ErrorIs(t, err, ErrInvalidGlob)
	assert.Contains(t, err.Error(), "packages/[*")
	assert.Contains(t, err.Error(), "[legacy")
	assert.Equal(t, []string{"/r/packages/a", "/r/packages/b"}, got)
}
