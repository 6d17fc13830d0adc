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
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/driftgate/eval"
)

const testDoc = `
checks:
  - id: drift_gate
    kind: bounded
    direction: lte
    aggregate: max
    variants: [baseline, fix_rerank]
    metrics:
      - path: drift.step_rate
        max: 0.15
  - id: recall_gate
    kind: bounded
    direction: gte
    metrics:
      - path: retrieval.recall
        min: 0.70
      - path: retrieval.mrr
        min: 0.50
  - id: trap_canary
    kind: canary
    metric_path: trap.exact_match
    canary_alert_exact_rate: 0.92
    direction: gte
tolerances:
  step_rate: 0.02
variants:
  - name: baseline
    overrides: {rerank: "off"}
  - name: fix_rerank
    overrides: {rerank: "on"}
preference: [fix_rerank]
canary_variant: trap
`

func mustParse(t *testing.T, data string) *Document {
	t.Helper()
	doc, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestResolveFromDocument(t *testing.T) {
	doc := mustParse(t, testDoc)
	r := NewResolver(nil)

	check := r.Resolve(doc, "drift_gate", Defaults{})

	if check.ID != "drift_gate" {
		t.Errorf("ID = %q", check.ID)
	}
	if check.Path != eval.Path("drift.step_rate") {
		t.Errorf("Path = %q", check.Path)
	}
	if check.Max == nil || *check.Max != 0.15 {
		t.Errorf("Max = %v, want 0.15", check.Max)
	}
	if check.Min != nil {
		t.Errorf("Min = %v, want nil", check.Min)
	}
	if check.Direction != LTE {
		t.Errorf("Direction = %v, want LTE", check.Direction)
	}
	if check.Aggregate != AggregateMax {
		t.Errorf("Aggregate = %v, want max", check.Aggregate)
	}
	if len(check.Variants) != 2 {
		t.Errorf("Variants = %v", check.Variants)
	}
}

func TestResolveMissingCheckUsesDefaults(t *testing.T) {
	doc := mustParse(t, testDoc)
	r := NewResolver(nil)

	check := r.Resolve(doc, "absent", Defaults{
		Path:      "drift.step_rate",
		Max:       F64(0.10),
		Direction: LTE,
	})

	if check.Max == nil || *check.Max != 0.10 {
		t.Errorf("Max = %v, want caller default 0.10", check.Max)
	}
	if check.Path != "drift.step_rate" {
		t.Errorf("Path = %q", check.Path)
	}
}

func TestResolveNilDocument(t *testing.T) {
	r := NewResolver(nil)

	check := r.Resolve(nil, "drift_gate", Defaults{Path: "drift.step_rate"})

	// No bound anywhere degrades to the documented drift ceiling.
	if check.Max == nil || *check.Max != DefaultDriftMax {
		t.Errorf("Max = %v, want DefaultDriftMax", check.Max)
	}
	if check.Direction != LTE {
		t.Errorf("Direction = %v, want LTE", check.Direction)
	}
}

func TestResolveMalformedDirectionKeepsDefault(t *testing.T) {
	doc := mustParse(t, `
checks:
  - id: odd
    direction: sideways
    metrics:
      - path: a.b
        min: 0.5
`)
	r := NewResolver(nil)

	check := r.Resolve(doc, "odd", Defaults{Direction: GTE})
	if check.Direction != GTE {
		t.Errorf("Direction = %v, want default GTE", check.Direction)
	}
	if check.Min == nil || *check.Min != 0.5 {
		t.Errorf("Min = %v, want 0.5", check.Min)
	}
}

func TestResolveCanary(t *testing.T) {
	doc := mustParse(t, testDoc)
	r := NewResolver(nil)

	t.Run("from document", func(t *testing.T) {
		canary := r.ResolveCanary(doc, "trap_canary", CanaryDefaults{})
		if canary.Path != "trap.exact_match" {
			t.Errorf("Path = %q", canary.Path)
		}
		if canary.AlertRate != 0.92 {
			t.Errorf("AlertRate = %v, want 0.92", canary.AlertRate)
		}
		if canary.Direction != GTE {
			t.Errorf("Direction = %v, want GTE", canary.Direction)
		}
		if canary.Variant != "trap" {
			t.Errorf("Variant = %q, want trap (document canary_variant)", canary.Variant)
		}
	})

	t.Run("missing check falls back to constant", func(t *testing.T) {
		canary := r.ResolveCanary(nil, "absent", CanaryDefaults{
			Path:      "trap.exact_match",
			Direction: GTE,
		})
		if canary.AlertRate != DefaultCanaryAlertRate {
			t.Errorf("AlertRate = %v, want DefaultCanaryAlertRate", canary.AlertRate)
		}
	})
}

func TestResolveAllExpandsMetrics(t *testing.T) {
	doc := mustParse(t, testDoc)
	r := NewResolver(nil)

	checks := r.ResolveAll(doc, Defaults{})

	// drift_gate has one metric, recall_gate has two; the canary is skipped.
	if len(checks) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(checks), checks)
	}
	if checks[1].Path != "retrieval.recall" || checks[2].Path != "retrieval.mrr" {
		t.Errorf("recall_gate expansion wrong: %q, %q", checks[1].Path, checks[2].Path)
	}
	if checks[2].Min == nil || *checks[2].Min != 0.50 {
		t.Errorf("mrr Min = %v, want 0.50", checks[2].Min)
	}
	if checks[2].Direction != GTE {
		t.Errorf("mrr Direction = %v, want GTE", checks[2].Direction)
	}
}

func TestResolvedCheckBound(t *testing.T) {
	gte := ResolvedCheck{Min: F64(0.7), Max: F64(0.9), Direction: GTE}
	if gte.Bound() != 0.7 {
		t.Errorf("GTE Bound = %v, want 0.7", gte.Bound())
	}
	lte := ResolvedCheck{Min: F64(0.7), Max: F64(0.9), Direction: LTE}
	if lte.Bound() != 0.9 {
		t.Errorf("LTE Bound = %v, want 0.9", lte.Bound())
	}
}

func TestLoad(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "checks.yaml")
		if err := os.WriteFile(path, []byte(testDoc), 0o644); err != nil {
			t.Fatal(err)
		}

		doc, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(doc.Checks) != 3 {
			t.Errorf("Checks = %d, want 3", len(doc.Checks))
		}
		if doc.Tolerances["step_rate"] != 0.02 {
			t.Errorf("tolerance = %v", doc.Tolerances["step_rate"])
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		if _, err := Parse([]byte("checks: [:")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestParseDirectionAndAggregate(t *testing.T) {
	if _, err := ParseDirection("neither"); err == nil {
		t.Error("expected direction error")
	}
	if _, err := ParseAggregate("median"); err == nil {
		t.Error("expected aggregate error")
	}
	for s, want := range map[string]Aggregate{"max": AggregateMax, "min": AggregateMin, "mean": AggregateMean} {
		got, err := ParseAggregate(s)
		if err != nil || got != want {
			t.Errorf("ParseAggregate(%q) = %v, %v", s, got, err)
		}
	}
}
