// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot stores immutable per-job metric snapshots and classifies
// how a current snapshot differs from a prior baseline.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/driftgate/eval"
	"github.com/AleutianAI/driftgate/pkg/validation"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrSnapshotNotFound indicates no snapshot exists under the name.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidSnapshot indicates the stored snapshot is corrupt. A
	// corrupt baseline is fatal for the invocation that needs it.
	ErrInvalidSnapshot = errors.New("invalid snapshot data")
)

// -----------------------------------------------------------------------------
// Snapshot
// -----------------------------------------------------------------------------

// Snapshot is an immutable, timestamped collection of per-job metric bundles.
//
// Description:
//
//	Jobs are keyed by stable job identifiers so classification is
//	order-independent. A snapshot is never mutated in place: stores copy
//	on read and write, and a new measurement round always produces a
//	fresh Snapshot.
type Snapshot struct {
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`

	// Jobs maps job identifier to that job's metric bundle.
	Jobs map[string]eval.Bundle `json:"jobs"`
}

// New creates a snapshot over the given jobs, stamped now.
func New(jobs map[string]eval.Bundle) Snapshot {
	return Snapshot{Timestamp: time.Now().UTC(), Jobs: jobs}
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Timestamp: s.Timestamp}
	if s.Jobs != nil {
		out.Jobs = make(map[string]eval.Bundle, len(s.Jobs))
		for id, bundle := range s.Jobs {
			out.Jobs[id] = bundle.Clone()
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store persists and retrieves named snapshots.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves the snapshot under the given name.
	// Returns ErrSnapshotNotFound if none exists and ErrInvalidSnapshot
	// if the stored data is corrupt.
	Get(ctx context.Context, name string) (Snapshot, error)

	// Set stores a snapshot under the given name. The stored copy is
	// detached from the caller's value.
	Set(ctx context.Context, name string, snap Snapshot) error

	// List returns all stored snapshot names.
	List(ctx context.Context) ([]string, error)
}

// -----------------------------------------------------------------------------
// Memory Store (for testing)
// -----------------------------------------------------------------------------

// MemoryStore keeps snapshots in memory. Data is lost on process exit;
// useful for tests and short-lived pipelines.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Snapshot
}

// NewMemoryStore creates a memory-backed snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Snapshot)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, name string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.data[name]
	if !ok {
		return Snapshot{}, ErrSnapshotNotFound
	}
	return snap.Clone(), nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, name string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = snap.Clone()
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	return names, nil
}

// -----------------------------------------------------------------------------
// File Store
// -----------------------------------------------------------------------------

// FileStore persists snapshots as JSON files, one per name:
// {dir}/{name}.json.
//
// Writes are atomic (write-to-temp-then-rename) so a concurrent reader
// never observes a partially written snapshot.
//
// Thread Safety: Safe for concurrent use.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a file-backed snapshot store.
//
// Inputs:
//   - dir: Directory for snapshot files. Created if absent.
//
// Outputs:
//   - *FileStore: The new store. Never nil on success.
//   - error: Non-nil if the directory cannot be created.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Get implements Store.
func (f *FileStore) Get(_ context.Context, name string) (Snapshot, error) {
	if err := validation.ValidateName(name); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot name: %w", err)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.filePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, ErrSnapshotNotFound
		}
		return Snapshot{}, fmt.Errorf("reading snapshot %s: %w", name, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", name, ErrInvalidSnapshot)
	}
	return snap, nil
}

// Set implements Store.
func (f *FileStore) Set(_ context.Context, name string, snap Snapshot) error {
	if err := validation.ValidateName(name); err != nil {
		return fmt.Errorf("snapshot name: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", name, err)
	}

	path := f.filePath(name)
	tmp, err := os.CreateTemp(f.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing snapshot %s: %w", name, err)
	}
	return nil
}

// List implements Store.
func (f *FileStore) List(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) == ".json" {
			names = append(names, name[:len(name)-5])
		}
	}
	return names, nil
}

// filePath returns the file path for a snapshot name.
func (f *FileStore) filePath(name string) string {
	return filepath.Join(f.dir, name+".json")
}

// LoadFile reads a single snapshot document from an arbitrary path, outside
// any store. Used for producer summary files.
func LoadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", path, ErrInvalidSnapshot)
	}
	return snap, nil
}
