// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace turns project roots into a component registry.
//
// A run loads each project (package.json name, tsconfig aliases, include
// and exclude globs), walks its source files honoring ignore files, and
// extracts every file on a bounded worker pool. Each file becomes one
// graph.Batch; a single writer applies batches to the registry, so the
// registry is never written concurrently. Source projects are processed
// before consumer projects so that cross-project edges find their
// targets.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/resolve"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// OverridesFileName is the optional per-project configuration file.
const OverridesFileName = "compgraph.yaml"

// Role is a project's part in a multi-project run.
type Role int

const (
	// RoleSource projects declare components other projects consume.
	RoleSource Role = iota

	// RoleConsumer projects render components of their source projects.
	RoleConsumer
)

// String returns "source" or "consumer".
func (r Role) String() string {
	if r == RoleConsumer {
		return "consumer"
	}
	return "source"
}

// ParseRole maps "source" or "consumer" to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "source", "":
		return RoleSource, nil
	case "consumer":
		return RoleConsumer, nil
	}
	return RoleSource, fmt.Errorf("unknown project role %q", s)
}

// Overrides is the content of compgraph.yaml at a project root.
type Overrides struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`

	// Sources names the source projects of a consumer.
	Sources []string `yaml:"sources"`

	// Role overrides the role given on the command line.
	Role string `yaml:"role"`
}

// Project is one package of the workspace.
type Project struct {
	// Name is the package.json name.
	Name string

	// Root is the absolute project directory.
	Root string

	Role Role

	// Sources are the source project names of a consumer.
	Sources []string

	// Include and Exclude are globs relative to Root.
	Include []string
	Exclude []string

	// Aliases is the tsconfig/jsconfig path alias table.
	Aliases resolve.AliasConfig

	// ConfigErrors are configuration problems found while loading. The
	// project was loaded with defaults in their place; runs report them
	// as ProjectErrors.
	ConfigErrors []error
}

// ProjectOption configures LoadProject.
type ProjectOption func(*projectOptions)

type projectOptions struct {
	include []string
	exclude []string
	sources []string
	logger  *slog.Logger
}

// WithInclude sets the include globs. Defaults to every file.
func WithInclude(globs ...string) ProjectOption {
	return func(o *projectOptions) {
		o.include = append(o.include, globs...)
	}
}

// WithExclude adds exclude globs.
func WithExclude(globs ...string) ProjectOption {
	return func(o *projectOptions) {
		o.exclude = append(o.exclude, globs...)
	}
}

// WithSources sets the source projects of a consumer.
func WithSources(names ...string) ProjectOption {
	return func(o *projectOptions) {
		o.sources = append(o.sources, names...)
	}
}

// WithProjectLogger sets the logger used for load warnings.
func WithProjectLogger(logger *slog.Logger) ProjectOption {
	return func(o *projectOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// LoadProject reads the project at root.
//
// Description:
//
//	The package.json name is required; it is the only configuration
//	problem that rejects the project. Everything else falls back:
//	unreadable alias configuration becomes an empty table, a malformed
//	compgraph.yaml is ignored, and malformed include or exclude globs are
//	dropped. When every include glob is dropped the project includes all
//	files. Each fallback is logged and kept in Project.ConfigErrors.
//
// Inputs:
//   - fsys: File system holding the project.
//   - root: Absolute project directory.
//   - role: Default role of the project.
//
// Outputs:
//   - *Project: The loaded project.
//   - error: ErrMissingProjectName or a manifest read error.
func LoadProject(fsys afero.Fs, root string, role Role, opts ...ProjectOption) (*Project, error) {
	o := projectOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	root = filepath.Clean(root)

	manifest, err := resolve.NewManifestReader(fsys).ReadManifest(root)
	if err != nil {
		if errors.Is(err, resolve.ErrNoManifest) {
			return nil, fmt.Errorf("%w: %s", ErrMissingProjectName, root)
		}
		return nil, err
	}
	if manifest.Name == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingProjectName, root)
	}

	p := &Project{
		Name:    manifest.Name,
		Root:    root,
		Role:    role,
		Sources: o.sources,
		Include: o.include,
		Exclude: o.exclude,
	}
	fallback := func(msg string, err error) {
		o.logger.Warn(msg,
			slog.String("project", p.Name),
			slog.String("error", err.Error()))
		p.ConfigErrors = append(p.ConfigErrors, err)
	}

	if p.Aliases, err = resolve.LoadAliasConfig(fsys, root); err != nil {
		fallback("alias config ignored", err)
		p.Aliases = resolve.AliasConfig{}
	}

	ov, err := loadOverrides(fsys, root)
	if err != nil {
		fallback("project overrides ignored", err)
	}
	if ov != nil {
		p.Include = append(p.Include, ov.Include...)
		p.Exclude = append(p.Exclude, ov.Exclude...)
		p.Sources = append(p.Sources, ov.Sources...)
		if ov.Role != "" {
			r, err := ParseRole(ov.Role)
			if err != nil {
				fallback("role override ignored", fmt.Errorf("%w: %s: %v", ErrInvalidOverrides, root, err))
			} else {
				p.Role = r
			}
		}
	}

	var bad []string
	includes := len(p.Include)
	p.Include, bad = splitGlobs(p.Include)
	if len(bad) > 0 {
		fallback("include globs dropped", fmt.Errorf("%w: include %s", ErrInvalidGlob, strings.Join(bad, ", ")))
		if includes > 0 && len(p.Include) == 0 {
			o.logger.Warn("no valid include globs left, including all files", slog.String("project", p.Name))
		}
	}
	p.Exclude, bad = splitGlobs(p.Exclude)
	if len(bad) > 0 {
		fallback("exclude globs dropped", fmt.Errorf("%w: exclude %s", ErrInvalidGlob, strings.Join(bad, ", ")))
	}
	return p, nil
}

func loadOverrides(fsys afero.Fs, root string) (*Overrides, error) {
	data, err := afero.ReadFile(fsys, filepath.Join(root, OverridesFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading overrides in %s: %w", root, err)
	}
	var ov Overrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOverrides, root, err)
	}
	return &ov, nil
}

// LoadProjects loads every root, collecting per-project failures instead
// of stopping at the first one.
func LoadProjects(fsys afero.Fs, roots []string, role Role, opts ...ProjectOption) ([]*Project, []ProjectError) {
	var projects []*Project
	var errs []ProjectError
	for _, root := range roots {
		p, err := LoadProject(fsys, root, role, opts...)
		if err != nil {
			errs = append(errs, ProjectError{Root: root, Err: err})
			continue
		}
		projects = append(projects, p)
	}
	return projects, errs
}
