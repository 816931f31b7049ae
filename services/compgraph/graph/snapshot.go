// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDB key layout for registry snapshots.
const (
	keyPrefixSnap      = "compgraph:snap:"
	keyPrefixSnapIndex = "compgraph:snap:index:"
	keySuffixData      = ":data"
	keySuffixMeta      = ":meta"
	keySuffixLatest    = ":latest"

	defaultListLimit = 100
)

// SnapshotMetadata describes a saved registry snapshot.
type SnapshotMetadata struct {
	// SnapshotID is sha256(WorkspaceRoot + ":" + CreatedAtNano)[:16].
	SnapshotID string `json:"snapshot_id"`

	WorkspaceRoot string `json:"workspace_root"`

	// WorkspaceHash is WorkspaceHash(WorkspaceRoot), the key group.
	WorkspaceHash string `json:"workspace_hash"`

	// RegistryHash is the content hash of the serialized registry.
	RegistryHash string `json:"registry_hash"`

	Label          string   `json:"label,omitempty"`
	CreatedAtMilli int64    `json:"created_at_milli"`
	ComponentCount int      `json:"component_count"`
	EdgeCount      int      `json:"edge_count"`
	Projects       []string `json:"projects"`
	SchemaVersion  string   `json:"schema_version"`

	// CompressedSize and ContentHash describe the gzip payload.
	CompressedSize int64  `json:"compressed_size"`
	ContentHash    string `json:"content_hash"`
}

// SnapshotManager saves and loads registry snapshots in BadgerDB.
//
// Description:
//
//	Snapshots are stored as gzip-compressed JSON of SerializableRegistry,
//	grouped by workspace root. Each workspace has a latest pointer.
//
//	compgraph:snap:{ws}:{id}:data -> gzip(JSON(SerializableRegistry))
//	compgraph:snap:{ws}:{id}:meta -> JSON(SnapshotMetadata)
//	compgraph:snap:{ws}:latest    -> id
//	compgraph:snap:index:{id}     -> ws
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotManager creates a manager over an opened DB. The caller owns
// the DB.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &SnapshotManager{db: db, logger: logger}, nil
}

// Save stores a snapshot of reg for workspaceRoot and moves the latest
// pointer to it.
func (m *SnapshotManager) Save(ctx context.Context, reg *ComponentRegistry, workspaceRoot, label string) (*SnapshotMetadata, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry must not be nil")
	}
	if workspaceRoot == "" {
		return nil, fmt.Errorf("workspace root must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, span := startOperationSpan(ctx, "SnapshotSave")
	defer span.End()
	start := time.Now()

	sr := reg.ToSerializable()
	jsonData, err := json.Marshal(sr)
	if err != nil {
		return nil, fmt.Errorf("marshaling registry: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing registry: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	data := compressed.Bytes()

	now := time.Now()
	wsHash := WorkspaceHash(workspaceRoot)
	projects := make([]string, 0, len(sr.Projects))
	for _, p := range sr.Projects {
		projects = append(projects, p.Name)
	}

	meta := &SnapshotMetadata{
		SnapshotID:     hashString(fmt.Sprintf("%s:%d", workspaceRoot, now.UnixNano()))[:16],
		WorkspaceRoot:  workspaceRoot,
		WorkspaceHash:  wsHash,
		RegistryHash:   sr.Hash,
		Label:          label,
		CreatedAtMilli: now.UnixMilli(),
		ComponentCount: sr.ComponentCount(),
		EdgeCount:      sr.EdgeCount(),
		Projects:       projects,
		SchemaVersion:  SchemaVersion,
		CompressedSize: int64(len(data)),
		ContentHash:    hashBytes(data),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(dataKey(wsHash, meta.SnapshotID), data); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set(metaKey(wsHash, meta.SnapshotID), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set(latestKey(wsHash), []byte(meta.SnapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		if err := txn.Set([]byte(keyPrefixSnapIndex+meta.SnapshotID), []byte(wsHash)); err != nil {
			return fmt.Errorf("storing reverse index: %w", err)
		}
		return nil
	})
	recordOperationMetrics(ctx, "snapshot_save", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}

	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", meta.SnapshotID),
		slog.String("workspace_root", workspaceRoot),
		slog.Int("component_count", meta.ComponentCount),
		slog.Int("edge_count", meta.EdgeCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load restores the snapshot with snapshotID.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (*ComponentRegistry, *SnapshotMetadata, error) {
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	wsHash, err := m.readString([]byte(keyPrefixSnapIndex + snapshotID))
	if err != nil {
		return nil, nil, fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}
	return m.loadByKeys(ctx, wsHash, snapshotID)
}

// LoadLatest restores the newest snapshot of workspaceRoot.
func (m *SnapshotManager) LoadLatest(ctx context.Context, workspaceRoot string) (*ComponentRegistry, *SnapshotMetadata, error) {
	if workspaceRoot == "" {
		return nil, nil, fmt.Errorf("workspace root must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	wsHash := WorkspaceHash(workspaceRoot)
	snapshotID, err := m.readString(latestKey(wsHash))
	if err != nil {
		return nil, nil, fmt.Errorf("reading latest pointer for %s: %w", workspaceRoot, err)
	}
	return m.loadByKeys(ctx, wsHash, snapshotID)
}

// List returns snapshot metadata, newest first. An empty workspaceRoot
// lists every workspace. limit <= 0 means 100.
func (m *SnapshotManager) List(ctx context.Context, workspaceRoot string, limit int) ([]*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	prefix := keyPrefixSnap
	if workspaceRoot != "" {
		prefix = keyPrefixSnap + WorkspaceHash(workspaceRoot) + ":"
	}

	var results []*SnapshotMetadata
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, keySuffixMeta) {
				continue
			}
			var meta SnapshotMetadata
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				m.logger.Warn("skipping corrupt metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAtMilli > results[j].CreatedAtMilli
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot. The latest pointer is removed when it
// pointed at the snapshot.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) error {
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	wsHash, err := m.readString([]byte(keyPrefixSnapIndex + snapshotID))
	if err != nil {
		return fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		for _, k := range [][]byte{
			dataKey(wsHash, snapshotID),
			metaKey(wsHash, snapshotID),
			[]byte(keyPrefixSnapIndex + snapshotID),
		} {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting %s: %w", k, err)
			}
		}

		item, err := txn.Get(latestKey(wsHash))
		if err != nil {
			return nil
		}
		var current string
		_ = item.Value(func(val []byte) error {
			current = string(val)
			return nil
		})
		if current == snapshotID {
			if err := txn.Delete(latestKey(wsHash)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("deleting latest pointer: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

func (m *SnapshotManager) loadByKeys(ctx context.Context, wsHash, snapshotID string) (*ComponentRegistry, *SnapshotMetadata, error) {
	start := time.Now()
	var data, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(wsHash, snapshotID))
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", snapshotID, err)
		}
		if data, err = item.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying data for %s: %w", snapshotID, err)
		}
		item, err = txn.Get(metaKey(wsHash, snapshotID))
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", snapshotID, err)
		}
		if metaJSON, err = item.ValueCopy(nil); err != nil {
			return fmt.Errorf("copying metadata for %s: %w", snapshotID, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			err = fmt.Errorf("%w: %w", ErrSnapshotNotFound, err)
		}
		return nil, nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if actual := hashBytes(data); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("integrity check failed for %s: expected hash %s, got %s", snapshotID, meta.ContentHash, actual)
	}

	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	defer gr.Close()
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", snapshotID, err)
	}

	var sr SerializableRegistry
	if err := json.Unmarshal(jsonData, &sr); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling registry for %s: %w", snapshotID, err)
	}
	reg, err := FromSerializable(&sr)
	recordOperationMetrics(ctx, "snapshot_load", time.Since(start), err == nil)
	if err != nil {
		return nil, nil, fmt.Errorf("reconstructing registry for %s: %w", snapshotID, err)
	}
	return reg, &meta, nil
}

// readString reads one key, mapping a missing key to ErrSnapshotNotFound.
func (m *SnapshotManager) readString(key []byte) (string, error) {
	var out string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrSnapshotNotFound
	}
	return out, err
}

// WorkspaceHash returns sha256(root)[:16], the key group of a workspace.
func WorkspaceHash(root string) string {
	return hashString(root)[:16]
}

func dataKey(wsHash, id string) []byte {
	return []byte(keyPrefixSnap + wsHash + ":" + id + keySuffixData)
}

func metaKey(wsHash, id string) []byte {
	return []byte(keyPrefixSnap + wsHash + ":" + id + keySuffixMeta)
}

func latestKey(wsHash string) []byte {
	return []byte(keyPrefixSnap + wsHash + keySuffixLatest)
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
