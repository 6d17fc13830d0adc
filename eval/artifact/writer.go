// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package artifact persists gate run records and resolves the most recent
// one for downstream tooling.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/driftgate/eval/gate"
	"github.com/AleutianAI/driftgate/eval/snapshot"
)

// SchemaVersion is bumped whenever the record layout changes shape in a
// way consumers must detect.
const SchemaVersion = 1

// pointerFileName is the well-known pointer to the most recent record.
const pointerFileName = "LATEST.json"

// -----------------------------------------------------------------------------
// Record Types
// -----------------------------------------------------------------------------

// VariantRecord captures one variant's outcome inside a run record.
type VariantRecord struct {
	// Name is the variant name.
	Name string `json:"name"`

	// Overrides are the parameter overrides the variant ran with.
	Overrides map[string]string `json:"overrides,omitempty"`

	// Observed is the variant's headline metric. Nil when the variant
	// failed or produced no metric.
	Observed *float64 `json:"observed,omitempty"`

	// Passed reports whether every check scoped to this variant passed.
	Passed bool `json:"passed"`

	// OutputPath is the variant's run output directory.
	OutputPath string `json:"output_path,omitempty"`

	// SummaryPath is the variant's summary file, when one was produced.
	SummaryPath string `json:"summary_path,omitempty"`
}

// Record is the versioned JSON document a gate run leaves behind.
type Record struct {
	// SchemaVersion identifies the record layout.
	SchemaVersion int `json:"schema_version"`

	// RunID uniquely identifies the gate run.
	RunID string `json:"run_id"`

	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"created_at"`

	// Status is the final gate status.
	Status gate.Status `json:"status"`

	// Canary is the canary status for the run.
	Canary gate.CanaryStatus `json:"canary"`

	// RunsDir is the directory holding per-variant run outputs.
	RunsDir string `json:"runs_dir,omitempty"`

	// Variants holds one entry per executed variant.
	Variants []VariantRecord `json:"variants"`

	// Checks holds the per-check evaluation results.
	Checks []gate.CheckResult `json:"checks"`

	// Summary tallies the snapshot classification outcome.
	Summary snapshot.Summary `json:"classification_summary"`

	// Classifications lists every per-metric classification.
	Classifications []snapshot.Classification `json:"classifications,omitempty"`

	// PreferredVariant names the variant downstream consumers should
	// promote. Never empty when at least one variant ran.
	PreferredVariant string `json:"preferred_variant,omitempty"`
}

// Pointer is the content of the latest-record pointer file.
type Pointer struct {
	// RunID is the run the pointer refers to.
	RunID string `json:"run_id"`

	// Path is the record file path, relative to the artifact directory.
	Path string `json:"path"`

	// UpdatedAt is when the pointer was last rewritten.
	UpdatedAt time.Time `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

// Writer persists run records into a directory and maintains the
// latest-record pointer.
//
// Thread Safety: Safe for concurrent use by distinct runs; the atomic
// rename makes the last writer win on the pointer.
type Writer struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a record writer rooted at dir. The directory is
// created if absent. A nil logger falls back to slog.Default().
func NewWriter(dir string, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, logger: logger, now: time.Now}, nil
}

// Write persists the record and repoints the latest pointer at it.
//
// Description:
//
//	The record lands at {dir}/{timestamp}_{runID}.json. Both the record
//	and the pointer are written to a temp file and renamed into place,
//	so a reader never observes a torn document. The timestamp prefix
//	keeps lexical file order equal to creation order.
//
// Outputs:
//   - string: Absolute path of the written record.
//   - error: Non-nil if the record could not be persisted. A failed
//     pointer update is logged but does not fail the write; the scan
//     fallback still finds the record.
func (w *Writer) Write(ctx context.Context, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rec.SchemaVersion = SchemaVersion
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = w.now().UTC()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", rec.CreatedAt.UTC().Format("20060102T150405"), shortID(rec.RunID))
	path := filepath.Join(w.dir, name)
	if err := writeAtomic(w.dir, path, data); err != nil {
		return "", fmt.Errorf("writing record: %w", err)
	}

	ptr := Pointer{RunID: rec.RunID, Path: name, UpdatedAt: w.now().UTC()}
	ptrData, err := json.MarshalIndent(ptr, "", "  ")
	if err == nil {
		err = writeAtomic(w.dir, filepath.Join(w.dir, pointerFileName), ptrData)
	}
	if err != nil {
		w.logger.Warn("latest pointer update failed; directory scan will still resolve",
			"run_id", rec.RunID, "error", err)
	}

	return path, nil
}

// writeAtomic writes data into path via a temp file in dir plus rename.
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// shortID truncates a run ID for use in file names.
func shortID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	if runID == "" {
		return "unknown"
	}
	return runID
}

// -----------------------------------------------------------------------------
// Preferred Variant Selection
// -----------------------------------------------------------------------------

// PreferredVariant picks the variant downstream consumers should promote.
//
// Description:
//
//	Walks the preference list and returns the first name whose variant
//	passed. When no preferred variant passed, any passing variant in
//	record order wins. When nothing passed, the fallback name is returned
//	if it names an executed variant; otherwise the first variant's name,
//	so the selection always points at a real record while variants exist.
func PreferredVariant(variants []VariantRecord, preference []string, fallback string) string {
	byName := make(map[string]VariantRecord, len(variants))
	for _, v := range variants {
		byName[v.Name] = v
	}

	for _, name := range preference {
		if v, ok := byName[name]; ok && v.Passed {
			return name
		}
	}
	for _, v := range variants {
		if v.Passed {
			return v.Name
		}
	}
	if _, ok := byName[fallback]; ok && fallback != "" {
		return fallback
	}
	if len(variants) > 0 {
		return variants[0].Name
	}
	return ""
}
