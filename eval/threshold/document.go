// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package threshold

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Document
// -----------------------------------------------------------------------------

// Document is the parsed checks configuration.
//
// Description:
//
//	A Document may be absent or partial; resolution substitutes documented
//	defaults for anything missing. The YAML shape:
//
//	    checks:
//	      - id: drift_gate
//	        kind: bounded
//	        direction: lte
//	        aggregate: max
//	        variants: [baseline, fix_rerank]
//	        metrics:
//	          - path: drift.step_rate
//	            max: 0.15
//	      - id: trap_canary
//	        kind: canary
//	        metric_path: trap.exact_match
//	        canary_alert_exact_rate: 0.90
//	    tolerances:
//	      step_rate: 0.02
//	    variants:
//	      - name: baseline
//	        overrides: {rerank: "off"}
//	    preference: [fix_rerank]
//	    canary_variant: trap
//
// Thread Safety: Read-only after Load; safe for concurrent use.
type Document struct {
	// Checks is the named check collection.
	Checks []CheckEntry `yaml:"checks" validate:"dive"`

	// Tolerances maps bare metric names to the absolute delta below which
	// a job counts as Unchanged in snapshot classification.
	Tolerances map[string]float64 `yaml:"tolerances"`

	// Variants declares the named configuration permutations to run.
	Variants []VariantEntry `yaml:"variants" validate:"dive"`

	// Preference orders the "fix" variants for latest-snapshot selection.
	Preference []string `yaml:"preference"`

	// CanaryVariant names the adversarial/trap variant the canary reads.
	CanaryVariant string `yaml:"canary_variant"`
}

// CheckEntry is one entry of the checks collection as written on disk.
type CheckEntry struct {
	ID        string        `yaml:"id" validate:"required"`
	Kind      string        `yaml:"kind"`
	Direction string        `yaml:"direction"`
	Aggregate string        `yaml:"aggregate"`
	Variants  []string      `yaml:"variants"`
	Metrics   []MetricEntry `yaml:"metrics" validate:"dive"`

	// Canary-kind fields.
	MetricPath           string   `yaml:"metric_path"`
	CanaryAlertExactRate *float64 `yaml:"canary_alert_exact_rate"`
}

// MetricEntry binds a metric path to optional bounds.
type MetricEntry struct {
	Path string   `yaml:"path" validate:"required"`
	Min  *float64 `yaml:"min"`
	Max  *float64 `yaml:"max"`
}

// VariantEntry declares one configuration permutation.
type VariantEntry struct {
	Name      string            `yaml:"name" validate:"required"`
	Overrides map[string]string `yaml:"overrides"`
}

// check returns the entry with the given id, or nil.
func (d *Document) check(id string) *CheckEntry {
	if d == nil {
		return nil
	}
	for i := range d.Checks {
		if d.Checks[i].ID == id {
			return &d.Checks[i]
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Loading
// -----------------------------------------------------------------------------

// Load reads and parses a checks document from disk.
//
// Description:
//
//	Unlike resolution, loading does surface errors: the caller decides
//	whether a missing file is acceptable (the resolver runs fine with a
//	nil document) or a misconfiguration worth reporting.
//
// Inputs:
//   - path: Path to the YAML checks document.
//
// Outputs:
//   - *Document: The parsed document. Nil on error.
//   - error: Non-nil if the file cannot be read or parsed.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checks document: %w", err)
	}
	return Parse(data)
}

// Parse parses a checks document from bytes.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing checks document: %w", err)
	}
	return &doc, nil
}

// Validate runs structural validation over the document.
//
// A validation failure is advisory: the resolver logs it and falls back to
// defaults rather than refusing to gate.
func (d *Document) Validate() error {
	if d == nil {
		return nil
	}
	return validator.New(validator.WithRequiredStructEnabled()).Struct(d)
}
