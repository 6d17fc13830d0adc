// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"testing"

	"github.com/AleutianAI/driftgate/eval"
)

func singleMetric(job, metric string, value float64) Snapshot {
	return Snapshot{Jobs: map[string]eval.Bundle{
		job: {metric: value},
	}}
}

func findClassification(t *testing.T, cls []Classification, job, metric string) Classification {
	t.Helper()
	for _, c := range cls {
		if c.JobID == job && c.Metric == metric {
			return c
		}
	}
	t.Fatalf("no classification for %s/%s in %+v", job, metric, cls)
	return Classification{}
}

func TestDiffTolerance(t *testing.T) {
	t.Run("delta within explicit tolerance is unchanged", func(t *testing.T) {
		base := singleMetric("job-a", "recall", 0.80)
		cur := singleMetric("job-a", "recall", 0.81)
		tol := ToleranceConfig{PerMetric: map[string]float64{"recall": 0.02}}

		got := Diff(base, cur, tol)
		if got[0].Category != CategoryUnchanged {
			t.Errorf("expected UNCHANGED, got %v", got[0].Category)
		}
	})

	t.Run("same delta beyond tighter tolerance is improved", func(t *testing.T) {
		base := singleMetric("job-a", "recall", 0.80)
		cur := singleMetric("job-a", "recall", 0.81)
		tol := ToleranceConfig{PerMetric: map[string]float64{"recall": 0.005}}

		got := Diff(base, cur, tol)
		if got[0].Category != CategoryImproved {
			t.Errorf("expected IMPROVED, got %v", got[0].Category)
		}
	})

	t.Run("relative fallback tolerance", func(t *testing.T) {
		// No explicit tolerance: fallback is 1% of the baseline.
		base := singleMetric("job-a", "throughput", 100.0)

		within := Diff(base, singleMetric("job-a", "throughput", 100.5), ToleranceConfig{})
		if within[0].Category != CategoryUnchanged {
			t.Errorf("0.5%% delta: expected UNCHANGED, got %v", within[0].Category)
		}

		beyond := Diff(base, singleMetric("job-a", "throughput", 102.0), ToleranceConfig{})
		if beyond[0].Category != CategoryImproved {
			t.Errorf("2%% delta: expected IMPROVED, got %v", beyond[0].Category)
		}
	})

	t.Run("zero baseline uses absolute floor", func(t *testing.T) {
		base := singleMetric("job-a", "recall", 0.0)
		cur := singleMetric("job-a", "recall", 1e-6)

		got := Diff(base, cur, ToleranceConfig{})
		if got[0].Category != CategoryImproved {
			t.Errorf("expected IMPROVED, got %v", got[0].Category)
		}
	})

	t.Run("boundary delta equal to tolerance is unchanged", func(t *testing.T) {
		base := singleMetric("job-a", "recall", 0.75)
		cur := singleMetric("job-a", "recall", 0.875)
		tol := ToleranceConfig{PerMetric: map[string]float64{"recall": 0.125}}

		got := Diff(base, cur, tol)
		if got[0].Category != CategoryUnchanged {
			t.Errorf("expected UNCHANGED at boundary, got %v", got[0].Category)
		}
	})
}

func TestDiffPolarity(t *testing.T) {
	tol := ToleranceConfig{PerMetric: map[string]float64{
		"step_rate": 0.01,
		"recall":    0.01,
	}}

	t.Run("drift decrease is an improvement", func(t *testing.T) {
		base := Snapshot{Jobs: map[string]eval.Bundle{
			"job-a": {"drift": map[string]any{"step_rate": 0.12}},
		}}
		cur := Snapshot{Jobs: map[string]eval.Bundle{
			"job-a": {"drift": map[string]any{"step_rate": 0.05}},
		}}

		got := Diff(base, cur, tol)
		c := findClassification(t, got, "job-a", "drift.step_rate")
		if c.Category != CategoryImproved {
			t.Errorf("expected IMPROVED for dropping drift, got %v", c.Category)
		}
	})

	t.Run("drift increase is a regression", func(t *testing.T) {
		base := Snapshot{Jobs: map[string]eval.Bundle{
			"job-a": {"drift": map[string]any{"step_rate": 0.05}},
		}}
		cur := Snapshot{Jobs: map[string]eval.Bundle{
			"job-a": {"drift": map[string]any{"step_rate": 0.12}},
		}}

		got := Diff(base, cur, tol)
		c := findClassification(t, got, "job-a", "drift.step_rate")
		if c.Category != CategoryRegressed {
			t.Errorf("expected REGRESSED for rising drift, got %v", c.Category)
		}
	})

	t.Run("recall decrease is a regression", func(t *testing.T) {
		base := singleMetric("job-a", "recall", 0.90)
		cur := singleMetric("job-a", "recall", 0.70)

		got := Diff(base, cur, tol)
		if got[0].Category != CategoryRegressed {
			t.Errorf("expected REGRESSED for falling recall, got %v", got[0].Category)
		}
	})
}

func TestDiffMembership(t *testing.T) {
	t.Run("job only in current is new", func(t *testing.T) {
		base := Snapshot{Jobs: map[string]eval.Bundle{}}
		cur := singleMetric("job-a", "recall", 0.9)

		got := Diff(base, cur, ToleranceConfig{})
		if len(got) != 1 || got[0].Category != CategoryNew {
			t.Errorf("expected single NEW, got %+v", got)
		}
		if got[0].Baseline != nil {
			t.Error("NEW classification must not carry a baseline value")
		}
	})

	t.Run("job only in baseline is removed", func(t *testing.T) {
		base := singleMetric("job-a", "recall", 0.9)
		cur := Snapshot{Jobs: map[string]eval.Bundle{}}

		got := Diff(base, cur, ToleranceConfig{})
		if len(got) != 1 || got[0].Category != CategoryRemoved {
			t.Errorf("expected single REMOVED, got %+v", got)
		}
		if got[0].Current != nil {
			t.Error("REMOVED classification must not carry a current value")
		}
	})

	t.Run("metric membership is per metric not per job", func(t *testing.T) {
		base := Snapshot{Jobs: map[string]eval.Bundle{
			"job-a": {"recall": 0.9, "precision": 0.8},
		}}
		cur := Snapshot{Jobs: map[string]eval.Bundle{
			"job-a": {"recall": 0.9, "f1": 0.85},
		}}

		got := Diff(base, cur, ToleranceConfig{})
		if c := findClassification(t, got, "job-a", "precision"); c.Category != CategoryRemoved {
			t.Errorf("precision: expected REMOVED, got %v", c.Category)
		}
		if c := findClassification(t, got, "job-a", "f1"); c.Category != CategoryNew {
			t.Errorf("f1: expected NEW, got %v", c.Category)
		}
		if c := findClassification(t, got, "job-a", "recall"); c.Category != CategoryUnchanged {
			t.Errorf("recall: expected UNCHANGED, got %v", c.Category)
		}
	})

	t.Run("matching is by identifier not position", func(t *testing.T) {
		base := Snapshot{Jobs: map[string]eval.Bundle{
			"job-a": {"recall": 0.9},
			"job-b": {"recall": 0.5},
		}}
		cur := Snapshot{Jobs: map[string]eval.Bundle{
			"job-b": {"recall": 0.5},
			"job-a": {"recall": 0.9},
		}}

		for _, c := range Diff(base, cur, ToleranceConfig{}) {
			if c.Category != CategoryUnchanged {
				t.Errorf("%s/%s: expected UNCHANGED, got %v", c.JobID, c.Metric, c.Category)
			}
		}
	})
}

func TestDiffAfterStoreRoundTrip(t *testing.T) {
	// Clone rewrites nested maps as eval.Bundle, so a snapshot read back
	// from a store carries a different nested shape than a freshly decoded
	// one. The differ must treat both identically.
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Set(ctx, "baseline", Snapshot{Jobs: map[string]eval.Bundle{
		"job-a": {"drift": map[string]any{"step_rate": 0.05}},
	}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	base, err := store.Get(ctx, "baseline")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	cur := Snapshot{Jobs: map[string]eval.Bundle{
		"job-a": {"drift": map[string]any{"step_rate": 0.50}},
	}}
	tol := ToleranceConfig{PerMetric: map[string]float64{"step_rate": 0.01}}

	got := findClassification(t, Diff(base, cur, tol), "job-a", "drift.step_rate")
	if got.Category != CategoryRegressed {
		t.Errorf("expected REGRESSED, got %v", got.Category)
	}
	if got.Baseline == nil || *got.Baseline != 0.05 {
		t.Errorf("baseline value lost in round trip: %v", got.Baseline)
	}

	t.Run("nested bundles built directly", func(t *testing.T) {
		base := Snapshot{Jobs: map[string]eval.Bundle{
			"job-a": {"drift": eval.Bundle{"step_rate": 0.05}},
		}}
		got := findClassification(t, Diff(base, cur, tol), "job-a", "drift.step_rate")
		if got.Category != CategoryRegressed {
			t.Errorf("expected REGRESSED, got %v", got.Category)
		}
	})
}

func TestDiffAntiSymmetry(t *testing.T) {
	base := Snapshot{Jobs: map[string]eval.Bundle{
		"job-a": {"recall": 0.70, "drift": map[string]any{"step_rate": 0.20}},
		"job-b": {"loss": 1.5},
	}}
	cur := Snapshot{Jobs: map[string]eval.Bundle{
		"job-a": {"recall": 0.90, "drift": map[string]any{"step_rate": 0.05}},
		"job-c": {"loss": 0.4},
	}}

	forward := Diff(base, cur, ToleranceConfig{})
	reverse := Diff(cur, base, ToleranceConfig{})

	lookup := func(cls []Classification, job, metric string) (Category, bool) {
		for _, c := range cls {
			if c.JobID == job && c.Metric == metric {
				return c.Category, true
			}
		}
		return 0, false
	}

	mirror := map[Category]Category{
		CategoryImproved:  CategoryRegressed,
		CategoryRegressed: CategoryImproved,
		CategoryNew:       CategoryRemoved,
		CategoryRemoved:   CategoryNew,
		CategoryUnchanged: CategoryUnchanged,
	}

	for _, c := range forward {
		rev, ok := lookup(reverse, c.JobID, c.Metric)
		if !ok {
			t.Errorf("%s/%s missing from reversed diff", c.JobID, c.Metric)
			continue
		}
		if rev != mirror[c.Category] {
			t.Errorf("%s/%s: forward %v reversed to %v, expected %v",
				c.JobID, c.Metric, c.Category, rev, mirror[c.Category])
		}
	}
	if len(forward) != len(reverse) {
		t.Errorf("diff sizes differ: forward %d, reverse %d", len(forward), len(reverse))
	}
}

func TestDiffDeterministicOrder(t *testing.T) {
	base := Snapshot{Jobs: map[string]eval.Bundle{
		"job-c": {"recall": 0.9, "a_metric": 1.0},
		"job-a": {"recall": 0.9},
		"job-b": {"recall": 0.9},
	}}

	first := Diff(base, base, ToleranceConfig{})
	for i := 0; i < 20; i++ {
		again := Diff(base, base, ToleranceConfig{})
		if len(again) != len(first) {
			t.Fatalf("run %d: size changed", i)
		}
		for j := range first {
			if first[j].JobID != again[j].JobID ||
				first[j].Metric != again[j].Metric ||
				first[j].Category != again[j].Category {
				t.Fatalf("run %d: order differs at index %d", i, j)
			}
		}
	}

	// Sorted by job then metric.
	for i := 1; i < len(first); i++ {
		prev, curr := first[i-1], first[i]
		if prev.JobID > curr.JobID ||
			(prev.JobID == curr.JobID && prev.Metric > curr.Metric) {
			t.Errorf("output not sorted: %s/%s before %s/%s",
				prev.JobID, prev.Metric, curr.JobID, curr.Metric)
		}
	}
}

func TestSummarize(t *testing.T) {
	cls := []Classification{
		{Category: CategoryUnchanged},
		{Category: CategoryUnchanged},
		{Category: CategoryImproved},
		{Category: CategoryRegressed},
		{Category: CategoryNew},
		{Category: CategoryRemoved},
	}

	s := Summarize(cls)
	if s.Unchanged != 2 || s.Improved != 1 || s.Regressed != 1 || s.New != 1 || s.Removed != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
}
