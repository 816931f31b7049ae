// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command compgraph builds the component dependency graph of React
// projects written in TypeScript or JavaScript.
//
// Usage:
//
//	compgraph analyze ./packages/ui ./apps/web
//	compgraph analyze . --format json > graph.json
//	compgraph traverse Home . --project @acme/web
//	compgraph serve . --addr 127.0.0.1:8089
//	compgraph snapshot list .
//
// Configuration is read from .compgraph.yaml (working directory, then
// $HOME), COMPGRAPH_* environment variables and flags, in increasing
// priority.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	if err := a.rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "compgraph",
		Short: "Component dependency graphs for React codebases",
		Long: `compgraph parses the TypeScript and JavaScript files of one or more
projects, finds their React components and records which component renders
which, following imports through aliases, barrels and workspace packages.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default .compgraph.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "auto", "log format: auto, text, json")
	pf.Int("workers", 0, "parallel file workers (0 = one per CPU)")
	pf.StringSlice("include", nil, "include globs, relative to each project root")
	pf.StringSlice("exclude", nil, "exclude globs, relative to each project root")
	pf.Bool("infer-arrows", false, "treat capitalized arrow functions returning JSX as components")
	pf.Bool("count-spread", true, "count {...props} spreads as a prop")
	pf.String("unresolved", "same-file", "unresolved usage policy: same-file, none")
	pf.String("external", "placeholder", "external package policy: placeholder, skip")
	pf.Int("max-follow-depth", config.DefaultMaxFollowDepth, "maximum import hops when resolving a component")
	pf.String("snapshot-dir", config.DefaultSnapshotDir, "badger directory for registry snapshots")

	root.AddCommand(
		a.analyzeCommand(),
		a.traverseCommand(),
		a.serveCommand(),
		a.snapshotCommand(),
		versionCommand(a),
	)
	return root
}

// setup loads the configuration and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(a.stderr, cfg.Log.Format, cfg.LogLevel(), isTerminal(a.stderr))
	slog.SetDefault(a.logger)
	return nil
}

// newLogger returns a text handler for terminals and a JSON handler
// otherwise, unless format names one explicitly.
func newLogger(w io.Writer, format string, level slog.Level, tty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" || (format == "auto" && tty) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func versionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "compgraph %s\n", version)
		},
	}
}
