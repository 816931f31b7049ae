// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"errors"
	"testing"

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

func TestResolve_RelativeProbing(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/app/src/Button.tsx":          "",
		"/app/src/util.ts":             "",
		"/app/src/esm.js":              "",
		"/app/src/widgets/index.ts":    "",
		"/app/src/source.tsx":          "",
		"/app/src/data.json":           "{}",
		"/app/src/pkgdir/package.json": `{"main": "lib/entry.js"}`,
		"/app/src/pkgdir/lib/entry.js": "",
	})
	r := New(fs)

	tests := []struct {
		name      string
		specifier string
		want      string
	}{
		{"extension appended", "./Button", "/app/src/Button.tsx"},
		{"ts before tsx", "./util", "/app/src/util.ts"},
		{"literal file", "./esm.js", "/app/src/esm.js"},
		{"js aliases tsx source", "./source.js", "/app/src/source.tsx"},
		{"directory index", "./widgets", "/app/src/widgets/index.ts"},
		{"json", "./data", "/app/src/data.json"},
		{"directory manifest entry", "./pkgdir", "/app/src/pkgdir/lib/entry.js"},
		{"parent relative", "../src/Button", "/app/src/Button.tsx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve("/app/src", tt.specifier)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_RelativeMissing(t *testing.T) {
	r := New(afero.NewMemMapFs())
	_, err := r.Resolve("/app/src", "./Missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModuleNotFound))
	assert.False(t, IsExternal(err))
}

func TestResolve_Aliases(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/app/src/components/Button.tsx": "",
		"/app/src/theme/index.ts":        "",
		"/app/shared/tokens.ts":          "",
	})
	aliases := NewAliasConfig("/app", ".", map[string][]string{
		"@/*":     {"src/*"},
		"@theme":  {"src/theme"},
		"~/*":     {"missing/*", "shared/*"},
		"@nope/*": {"nowhere/*"},
	})
	r := New(fs, WithAliases(aliases))

	got, err := r.Resolve("/app/src/pages", "@/components/Button")
	require.NoError(t, err)
	assert.Equal(t, "/app/src/components/Button.tsx", got)

	got, err = r.Resolve("/app/src/pages", "@theme")
	require.NoError(t, err)
	assert.Equal(t, "/app/src/theme/index.ts", got)

	got, err = r.Resolve("/app/src/pages", "~/tokens")
	require.NoError(t, err)
	assert.Equal(t, "/app/shared/tokens.ts", got, "second alias target should be tried")

	got, err = r.Resolve("/app/src/pages", "src/components/Button")
	require.NoError(t, err)
	assert.Equal(t, "/app/src/components/Button.tsx", got, "baseUrl resolution")

	_, err = r.Resolve("/app/src/pages", "@nope/thing")
	assert.True(t, IsExternal(err), "alias without a file falls back to bare resolution")
}

func TestResolve_NodeModules(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/repo/node_modules/ui-kit/package.json":      `{"name":"ui-kit","types":"dist/index.d.ts","main":"dist/index.js"}`,
		"/repo/node_modules/ui-kit/dist/index.d.ts":   "",
		"/repo/node_modules/ui-kit/dist/index.js":     "",
		"/repo/node_modules/@acme/icons/package.json": `{"name":"@acme/icons","module":"esm/index.js","browser":{"./x":"./y"}}`,
		"/repo/node_modules/@acme/icons/esm/index.js": "",
		"/repo/node_modules/@acme/icons/esm/Star.js":  "",
		"/repo/node_modules/plain/index.js":           "",
	})
	r := New(fs)

	got, err := r.Resolve("/repo/app/src", "ui-kit")
	require.NoError(t, err)
	assert.Equal(t, "/repo/node_modules/ui-kit/dist/index.d.ts", got, "types has priority")

	got, err = r.Resolve("/repo/app/src", "@acme/icons")
	require.NoError(t, err)
	assert.Equal(t, "/repo/node_modules/@acme/icons/esm/index.js", got)

	got, err = r.Resolve("/repo/app/src", "@acme/icons/esm/Star")
	require.NoError(t, err)
	assert.Equal(t, "/repo/node_modules/@acme/icons/esm/Star.js", got)

	got, err = r.Resolve("/repo/app/src", "plain")
	require.NoError(t, err)
	assert.Equal(t, "/repo/node_modules/plain/index.js", got)

	_, err = r.Resolve("/repo/app/src", "@scope/absent/deep")
	require.Error(t, err)
	assert.True(t, IsExternal(err))
	assert.True(t, errors.Is(err, ErrModuleNotFound))
	assert.Equal(t, "@scope/absent", ExternalPackage(err))
}

func TestResolve_WorkspacePackages(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/repo/packages/ui/package.json":   `{"name":"@acme/ui","main":"src/index.ts"}`,
		"/repo/packages/ui/src/index.ts":   "",
		"/repo/packages/ui/src/Button.tsx": "",
	})
	r := New(fs, WithWorkspacePackages(map[string]string{"@acme/ui": "/repo/packages/ui"}))

	got, err := r.Resolve("/repo/apps/web/src", "@acme/ui")
	require.NoError(t, err)
	assert.Equal(t, "/repo/packages/ui/src/index.ts", got)

	got, err = r.Resolve("/repo/apps/web/src", "@acme/ui/src/Button")
	require.NoError(t, err)
	assert.Equal(t, "/repo/packages/ui/src/Button.tsx", got)
}

func TestSplitPackageSpecifier(t *testing.T) {
	tests := []struct {
		in, pkg, sub string
	}{
		{"react", "react", ""},
		{"lodash/get", "lodash", "get"},
		{"@scope/ui", "@scope/ui", ""},
		{"@scope/ui/button/x", "@scope/ui", "button/x"},
	}
	for _, tt := range tests {
		pkg, sub := SplitPackageSpecifier(tt.in)
		assert.Equal(t, tt.pkg, pkg, tt.in)
		assert.Equal(t, tt.sub, sub, tt.in)
	}
}

func TestLoadAliasConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/repo/tsconfig.base.json": `{
  // shared options
  "compilerOptions": {
    "baseUrl": ".",
    "paths": { "@shared/*": ["libs/shared/*"], }, /* trailing comma */
  },
}`,
		"/repo/apps/web/tsconfig.json": `{
  "extends": "../../tsconfig.base",
  "compilerOptions": { "paths": { "@/*": ["./src/*"], "@/ui": ["./src/ui/index.ts"] } }
}`,
	})

	cfg, err := LoadAliasConfig(fs, "/repo/apps/web")
	require.NoError(t, err)
	assert.Equal(t, "/repo", cfg.BaseURL, "baseUrl inherited from the extended config")
	require.Len(t, cfg.Paths, 2, "nearest paths win over inherited ones")
	assert.Equal(t, "@/ui", cfg.Paths[0].Pattern, "exact patterns sort first")

	cands, ok := cfg.Candidates("@/components/Button")
	require.True(t, ok)
	assert.Equal(t, []string{"/repo/src/components/Button"}, cands)

	_, ok = cfg.Candidates("react")
	assert.False(t, ok)
}

func TestLoadAliasConfig_MissingAndMalformed(t *testing.T) {
	fs := afero.NewMemMapFs()

	cfg, err := LoadAliasConfig(fs, "/empty")
	require.NoError(t, err)
	assert.True(t, cfg.IsEmpty())

	writeFiles(t, fs, map[string]string{"/bad/jsconfig.json": `{ "compilerOptions": `})
	_, err = LoadAliasConfig(fs, "/bad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoadAliasConfig_CommentsInsideStrings(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/p/tsconfig.json": `{
  "compilerOptions": {
    "baseUrl": "./src//root", /* c */
    "paths": { "~/*": ["./*",], }, // end
  },
}`,
	})

	cfg, err := LoadAliasConfig(fs, "/p")
	require.NoError(t, err)
	assert.Equal(t, "/p/src/root", cfg.BaseURL)
	require.Len(t, cfg.Paths, 1)
	assert.Equal(t, "~/*", cfg.Paths[0].Pattern)
}

func TestManifest_EntryPointsAndWorkspaces(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/a/package.json": `{"name":"a","main":"m.js","browser":"b.js","typings":"t.d.ts","workspaces":["packages/*"]}`,
		"/b/package.json": `{"name":"b","workspaces":{"packages":["apps/*","libs/*"]}}`,
		"/c/package.json": `{"name":`,
	})
	reader := NewManifestReader(fs)

	m, err := reader.ReadManifest("/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"t.d.ts", "m.js", "b.js"}, m.EntryPoints())
	assert.Equal(t, []string{"packages/*"}, m.WorkspacePatterns())

	m, err = reader.ReadManifest("/b")
	require.NoError(t, err)
	assert.Equal(t, []string{"apps/*", "libs/*"}, m.WorkspacePatterns())

	_, err = reader.ReadManifest("/c")
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = reader.ReadManifest("/missing")
	assert.True(t, errors.Is(err, ErrNoManifest))
}
