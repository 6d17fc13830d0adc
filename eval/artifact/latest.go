// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoArtifact indicates no record could be resolved in the directory.
var ErrNoArtifact = errors.New("no artifact record found")

// -----------------------------------------------------------------------------
// Resolution Strategies
// -----------------------------------------------------------------------------

// ResolveStrategy attempts to locate the most recent record in dir.
//
// Outputs:
//   - string: Absolute record path when found.
//   - bool: Whether the strategy produced a result. A false with a nil
//     error means "not my call, try the next strategy".
//   - error: Non-nil only for failures that should stop the chain.
type ResolveStrategy func(dir string) (string, bool, error)

// PointerStrategy resolves via the LATEST.json pointer file. A missing
// or unreadable pointer, or a pointer at a vanished record, defers to
// the next strategy rather than failing.
func PointerStrategy(dir string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, pointerFileName))
	if err != nil {
		return "", false, nil
	}

	var ptr Pointer
	if err := json.Unmarshal(data, &ptr); err != nil || ptr.Path == "" {
		return "", false, nil
	}

	path := ptr.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", false, nil
	}
	return path, true, nil
}

// ScanStrategy resolves by scanning dir for record files and picking the
// lexically greatest name. Record names carry a timestamp prefix, so
// lexical order equals creation order.
func ScanStrategy(dir string) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("scanning artifact dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == pointerFileName {
			continue
		}
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false, nil
	}

	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), true, nil
}

// -----------------------------------------------------------------------------
// Resolution
// -----------------------------------------------------------------------------

// ResolveLatest walks the strategy chain and returns the first hit.
//
// Inputs:
//   - dir: The artifact directory.
//   - strategies: Ordered strategies to try. Empty uses the default
//     chain: pointer file, then directory scan.
//
// Outputs:
//   - string: The resolved record path.
//   - error: ErrNoArtifact when every strategy declines.
func ResolveLatest(dir string, strategies ...ResolveStrategy) (string, error) {
	if len(strategies) == 0 {
		strategies = []ResolveStrategy{PointerStrategy, ScanStrategy}
	}

	for _, strategy := range strategies {
		path, ok, err := strategy(dir)
		if err != nil {
			return "", err
		}
		if ok {
			return path, nil
		}
	}
	return "", ErrNoArtifact
}

// ReadRecord loads and decodes a record file.
func ReadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("reading record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding record %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}
