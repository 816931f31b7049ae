// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/AleutianAI/ComponentGraph/services/compgraph/workspace"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// ErrRunFailed is returned by --strict runs that recorded failures.
var ErrRunFailed = errors.New("analysis recorded failures")

// targets are the project roots named on the command line.
type targets struct {
	// Roots are source roots. A root declaring a workspace stands for its
	// member packages.
	Roots []string

	// Consumers are consumer roots, bound to Sources.
	Consumers []string
	Sources   []string
}

func (t *targets) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&t.Consumers, "consumer", nil, "consumer project root (repeatable)")
	cmd.Flags().StringSliceVar(&t.Sources, "source", nil, "source project name consumed by every --consumer (repeatable)")
}

// workspaceRoot is the directory snapshots are keyed by: the first root.
func (t *targets) workspaceRoot() (string, error) {
	if len(t.Roots) > 0 {
		return filepath.Abs(t.Roots[0])
	}
	return filepath.Abs(".")
}

// loadProjects expands workspace roots and loads every project.
//
// Description:
//
//	Each root declaring package.json workspaces or a pnpm workspace is
//	replaced by its member packages; any other root is a project itself.
//	Consumer roots are loaded with RoleConsumer and the --source names.
//	A project that fails to load is reported and the rest continue.
//	Malformed workspace patterns are reported and the members matched by
//	the remaining ones are still loaded.
func (a *app) loadProjects(fsys afero.Fs, t targets) ([]*workspace.Project, []workspace.ProjectError) {
	logger := a.logger
	opts := a.cfg.ProjectOptions(logger)

	expand := func(roots []string) ([]string, []workspace.ProjectError) {
		var out []string
		var errs []workspace.ProjectError
		for _, root := range roots {
			abs, err := filepath.Abs(root)
			if err != nil {
				errs = append(errs, workspace.ProjectError{Root: root, Err: err})
				continue
			}
			members, err := workspace.DiscoverWorkspace(fsys, abs)
			if err != nil {
				errs = append(errs, workspace.ProjectError{Root: abs, Err: err})
				if !errors.Is(err, workspace.ErrInvalidGlob) {
					continue
				}
			}
			if len(members) == 0 {
				out = append(out, abs)
				continue
			}
			logger.Debug("workspace discovered", slog.String("root", abs), slog.Int("members", len(members)))
			out = append(out, members...)
		}
		return out, errs
	}

	sourceRoots, errs := expand(t.Roots)
	projects, loadErrs := workspace.LoadProjects(fsys, sourceRoots, workspace.RoleSource, opts...)
	errs = append(errs, loadErrs...)

	if len(t.Consumers) > 0 {
		consumerRoots, expandErrs := expand(t.Consumers)
		errs = append(errs, expandErrs...)
		consumerOpts := append(append([]workspace.ProjectOption{}, opts...), workspace.WithSources(t.Sources...))
		consumers, loadErrs := workspace.LoadProjects(fsys, consumerRoots, workspace.RoleConsumer, consumerOpts...)
		projects = append(projects, consumers...)
		errs = append(errs, loadErrs...)
	}
	return projects, errs
}

// runAnalysis loads the targets and builds a fresh registry.
func (a *app) runAnalysis(ctx context.Context, fsys afero.Fs, t targets) (*workspace.Orchestrator, []*workspace.Project, *workspace.RunResult, error) {
	projects, loadErrs := a.loadProjects(fsys, t)
	for _, e := range loadErrs {
		a.logger.Warn("project skipped", slog.String("root", e.Root), slog.String("error", e.Err.Error()))
	}
	if len(projects) == 0 {
		if len(loadErrs) == 0 {
			return nil, nil, nil, errors.New("no projects to analyze")
		}
		return nil, nil, nil, fmt.Errorf("no projects to analyze: %w", errors.Join(projectErrs(loadErrs)...))
	}

	opts, err := a.cfg.OrchestratorOptions(a.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	opts = append(opts, workspace.WithProgress(func(p workspace.Progress) {
		a.logger.Debug("progress",
			slog.String("project", p.Project),
			slog.Int("files", p.FilesProcessed),
			slog.Int("failed", p.FilesFailed),
			slog.Int("components", p.Components))
	}))

	orch := workspace.NewOrchestrator(fsys, graph.NewComponentRegistry(a.cfg.RegistryOptions()...), opts...)
	result, err := orch.Run(ctx, projects)
	if result != nil {
		result.ProjectErrors = append(loadErrs, result.ProjectErrors...)
	}
	return orch, projects, result, err
}

func projectErrs(errs []workspace.ProjectError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

func (a *app) analyzeCommand() *cobra.Command {
	var (
		t      targets
		format string
		save   bool
		label  string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [roots...]",
		Short: "Build the component graph and print it",
		Long: `Analyze parses every project under the given roots (default ".") and
prints a summary or, with --format json, the serialized graph.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t.Roots = defaultRoots(args)
			if format != "summary" && format != "json" {
				return fmt.Errorf("unknown format %q", format)
			}

			orch, _, result, err := a.runAnalysis(cmd.Context(), afero.NewOsFs(), t)
			if err != nil {
				return err
			}
			reg := orch.Registry()

			if save {
				if err := a.saveSnapshot(cmd.Context(), reg, t, label); err != nil {
					return err
				}
			}

			if format == "json" {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(reg.ToSerializable()); err != nil {
					return err
				}
			} else {
				printSummary(a.stdout, result, reg.Stats())
			}

			if strict && result.HasErrors() {
				return ErrRunFailed
			}
			return nil
		},
	}
	t.register(cmd)
	cmd.Flags().StringVar(&format, "format", "summary", "output format: summary, json")
	cmd.Flags().BoolVar(&save, "save-snapshot", false, "save the registry as a snapshot")
	cmd.Flags().StringVar(&label, "label", "", "snapshot label")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any file, edge or project failed")
	return cmd
}

func (a *app) saveSnapshot(ctx context.Context, reg *graph.ComponentRegistry, t targets, label string) error {
	root, err := t.workspaceRoot()
	if err != nil {
		return err
	}
	db, err := graph.OpenSnapshotDB(a.cfg.Snapshot.Dir, a.logger)
	if err != nil {
		return err
	}
	defer db.Close()

	mgr, err := graph.NewSnapshotManager(db, a.logger)
	if err != nil {
		return err
	}
	meta, err := mgr.Save(ctx, reg, root, label)
	if err != nil {
		return err
	}
	a.logger.Info("snapshot saved",
		slog.String("snapshot_id", meta.SnapshotID),
		slog.Int("components", meta.ComponentCount))
	return nil
}

func (a *app) traverseCommand() *cobra.Command {
	var (
		t            targets
		project      string
		fromSnapshot bool
	)
	cmd := &cobra.Command{
		Use:   "traverse <component> [roots...]",
		Short: "Print the components a component renders, transitively",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t.Roots = defaultRoots(args[1:])

			var reg *graph.ComponentRegistry
			if fromSnapshot {
				loaded, err := a.loadLatestSnapshot(cmd.Context(), t)
				if err != nil {
					return err
				}
				reg = loaded
			} else {
				orch, _, _, err := a.runAnalysis(cmd.Context(), afero.NewOsFs(), t)
				if err != nil {
					return err
				}
				reg = orch.Registry()
			}
			return printTraversal(a.stdout, reg, args[0], project)
		},
	}
	t.register(cmd)
	cmd.Flags().StringVar(&project, "project", "", "project declaring the component")
	cmd.Flags().BoolVar(&fromSnapshot, "from-snapshot", false, "read the latest snapshot instead of analyzing")
	return cmd
}

func (a *app) loadLatestSnapshot(ctx context.Context, t targets) (*graph.ComponentRegistry, error) {
	root, err := t.workspaceRoot()
	if err != nil {
		return nil, err
	}
	db, err := graph.OpenSnapshotDB(a.cfg.Snapshot.Dir, a.logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	mgr, err := graph.NewSnapshotManager(db, a.logger)
	if err != nil {
		return nil, err
	}
	reg, meta, err := mgr.LoadLatest(ctx, root)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("snapshot loaded", slog.String("snapshot_id", meta.SnapshotID))
	return reg, nil
}

func defaultRoots(args []string) []string {
	if len(args) == 0 {
		return []string{"."}
	}
	return args
}
