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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/ComponentGraph/services/compgraph/graph"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func (a *app) snapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect saved registry snapshots",
	}
	cmd.AddCommand(a.snapshotListCommand(), a.snapshotDeleteCommand(), a.snapshotDiffCommand())
	return cmd
}

func (a *app) snapshotListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list [root]",
		Short: "List the snapshots of a workspace, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(defaultRoots(args)[0])
			if err != nil {
				return err
			}
			mgr, closeDB, err := a.openSnapshots()
			if err != nil {
				return err
			}
			defer closeDB()

			list, err := mgr.List(cmd.Context(), root, limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintf(a.stdout, "no snapshots for %s\n", root)
				return nil
			}
			return printSnapshots(a.stdout, list)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum snapshots to list")
	return cmd
}

func (a *app) snapshotDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeDB, err := a.openSnapshots()
			if err != nil {
				return err
			}
			defer closeDB()
			return mgr.Delete(cmd.Context(), args[0])
		},
	}
}

func (a *app) snapshotDiffCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "diff <base-id> <target-id>",
		Short: "Show components and edges that changed between two snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, closeDB, err := a.openSnapshots()
			if err != nil {
				return err
			}
			defer closeDB()

			base, _, err := mgr.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			target, _, err := mgr.Load(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			diff, err := graph.DiffRegistries(base, target, args[0], args[1])
			if err != nil {
				return err
			}
			if format == "json" {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(diff)
			}
			printDiff(a.stdout, diff)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "summary", "output format: summary, json")
	return cmd
}

// openSnapshots opens the on-disk snapshot database. An in-memory
// database would always be empty here, so an empty directory is an error.
func (a *app) openSnapshots() (*graph.SnapshotManager, func(), error) {
	if a.cfg.Snapshot.Dir == "" {
		return nil, nil, errors.New("snapshot.dir is not set")
	}
	db, err := graph.OpenSnapshotDB(a.cfg.Snapshot.Dir, a.logger)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := graph.NewSnapshotManager(db, a.logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return mgr, func() { db.Close() }, nil
}

func printSnapshots(w io.Writer, list []*graph.SnapshotMetadata) error {
	st := newStyles(w)
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("ID", "CREATED", "COMPONENTS", "EDGES", "PROJECTS", "LABEL").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.title
			}
			return lipgloss.NewStyle()
		})
	for _, m := range list {
		t.Row(
			m.SnapshotID,
			time.UnixMilli(m.CreatedAtMilli).Format(time.RFC3339),
			strconv.Itoa(m.ComponentCount),
			strconv.Itoa(m.EdgeCount),
			strings.Join(m.Projects, ","),
			m.Label,
		)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
