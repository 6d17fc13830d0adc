// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gate

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/AleutianAI/driftgate/eval"
	"github.com/AleutianAI/driftgate/eval/threshold"
	"github.com/AleutianAI/driftgate/eval/variant"
)

func okResult(name string, bundle eval.Bundle) variant.Result {
	v, _ := eval.Path("drift.step_rate").Resolve(bundle)
	return variant.Result{Name: name, Bundle: bundle, Value: &v}
}

func driftBundle(rate float64) eval.Bundle {
	return eval.Bundle{"drift": map[string]any{"step_rate": rate}}
}

func driftCheck(max float64) threshold.ResolvedCheck {
	return threshold.ResolvedCheck{
		ID:        "drift_gate",
		Path:      "drift.step_rate",
		Max:       threshold.F64(max),
		Direction: threshold.LTE,
		Aggregate: threshold.AggregateMax,
	}
}

func noCanary() threshold.CanaryCheck {
	return threshold.CanaryCheck{
		ID:        "trap_canary",
		Path:      "trap.exact_match",
		AlertRate: threshold.DefaultCanaryAlertRate,
		Direction: threshold.GTE,
	}
}

func TestEvaluateDirections(t *testing.T) {
	t.Run("lte passes at and below bound", func(t *testing.T) {
		for _, rate := range []float64{0.0, 0.10, 0.15} {
			d := Evaluate([]threshold.ResolvedCheck{driftCheck(0.15)}, noCanary(),
				[]variant.Result{okResult("baseline", driftBundle(rate))})
			if d.Status != Pass {
				t.Errorf("rate %v: status = %v, want PASS", rate, d.Status)
			}
		}
	})

	t.Run("lte fails above bound", func(t *testing.T) {
		d := Evaluate([]threshold.ResolvedCheck{driftCheck(0.15)}, noCanary(),
			[]variant.Result{okResult("baseline", driftBundle(0.1500001))})
		if d.Status != Fail {
			t.Errorf("status = %v, want FAIL", d.Status)
		}
		if d.PerCheck[0].Reason == "" {
			t.Error("failing check should carry a reason")
		}
	})

	t.Run("gte boundary equality passes", func(t *testing.T) {
		check := threshold.ResolvedCheck{
			ID:        "recall_gate",
			Path:      "retrieval.recall",
			Min:       threshold.F64(0.70),
			Direction: threshold.GTE,
			Aggregate: threshold.AggregateMax,
		}
		bundle := eval.Bundle{"retrieval": map[string]any{"recall": 0.70}}
		d := Evaluate([]threshold.ResolvedCheck{check}, noCanary(),
			[]variant.Result{{Name: "baseline", Bundle: bundle}})
		if d.Status != Pass {
			t.Errorf("status = %v, want PASS at boundary", d.Status)
		}
	})

	t.Run("interval requires both bounds", func(t *testing.T) {
		check := threshold.ResolvedCheck{
			ID:        "band",
			Path:      "drift.step_rate",
			Min:       threshold.F64(0.05),
			Max:       threshold.F64(0.15),
			Direction: threshold.LTE,
			Aggregate: threshold.AggregateMax,
		}
		for rate, want := range map[float64]Status{
			0.04: Fail,
			0.05: Pass,
			0.10: Pass,
			0.15: Pass,
			0.16: Fail,
		} {
			d := Evaluate([]threshold.ResolvedCheck{check}, noCanary(),
				[]variant.Result{okResult("baseline", driftBundle(rate))})
			if d.Status != want {
				t.Errorf("rate %v: status = %v, want %v", rate, d.Status, want)
			}
		}
	})
}

func TestEvaluateAggregation(t *testing.T) {
	results := []variant.Result{
		okResult("k2", driftBundle(0.1)),
		okResult("k4", driftBundle(0.3)),
		okResult("k8", driftBundle(0.05)),
	}

	observed := func(policy threshold.Aggregate) float64 {
		check := threshold.ResolvedCheck{
			ID:        "sweep",
			Path:      "drift.step_rate",
			Max:       threshold.F64(1.0),
			Direction: threshold.LTE,
			Aggregate: policy,
		}
		d := Evaluate([]threshold.ResolvedCheck{check}, noCanary(), results)
		if d.PerCheck[0].Observed == nil {
			t.Fatalf("observed nil for %v", policy)
		}
		return *d.PerCheck[0].Observed
	}

	if got := observed(threshold.AggregateMax); got != 0.3 {
		t.Errorf("max = %v, want 0.3", got)
	}
	if got := observed(threshold.AggregateMin); got != 0.05 {
		t.Errorf("min = %v, want 0.05", got)
	}
	if got := observed(threshold.AggregateMean); math.Abs(got-0.15) > 1e-12 {
		t.Errorf("mean = %v, want 0.15", got)
	}
}

func TestEvaluateFailClosed(t *testing.T) {
	t.Run("failed variant fails every referencing check", func(t *testing.T) {
		failed := variant.Result{
			Name: "baseline",
			Err:  errors.New("producer exited 1"),
		}
		// Generous bounds do not save a failed producer.
		d := Evaluate([]threshold.ResolvedCheck{driftCheck(1000)}, noCanary(),
			[]variant.Result{failed})
		if d.Status != Fail {
			t.Errorf("status = %v, want FAIL regardless of bounds", d.Status)
		}
		if d.PerCheck[0].Observed != nil {
			t.Error("failed check must not report an observed value")
		}
	})

	t.Run("missing metric fails", func(t *testing.T) {
		res := variant.Result{Name: "baseline", Bundle: eval.Bundle{"other": 1.0}}
		d := Evaluate([]threshold.ResolvedCheck{driftCheck(1000)}, noCanary(),
			[]variant.Result{res})
		if d.Status != Fail {
			t.Errorf("status = %v, want FAIL", d.Status)
		}
	})

	t.Run("no matching variants fails", func(t *testing.T) {
		check := driftCheck(1000)
		check.Variants = []string{"nonexistent"}
		d := Evaluate([]threshold.ResolvedCheck{check}, noCanary(),
			[]variant.Result{okResult("baseline", driftBundle(0.01))})
		if d.Status != Fail {
			t.Errorf("status = %v, want FAIL on empty aggregation", d.Status)
		}
	})

	t.Run("one failed sweep point fails the whole check", func(t *testing.T) {
		results := []variant.Result{
			okResult("k2", driftBundle(0.01)),
			{Name: "k4", Err: errors.New("timeout")},
		}
		d := Evaluate([]threshold.ResolvedCheck{driftCheck(1000)}, noCanary(), results)
		if d.Status != Fail {
			t.Errorf("status = %v, want FAIL", d.Status)
		}
	})
}

func TestEvaluateVariantSelection(t *testing.T) {
	results := []variant.Result{
		okResult("baseline", driftBundle(0.5)),
		okResult("fix_rerank", driftBundle(0.05)),
	}

	check := driftCheck(0.10)
	check.Variants = []string{"fix_rerank"}

	d := Evaluate([]threshold.ResolvedCheck{check}, noCanary(), results)
	if d.Status != Pass {
		t.Errorf("status = %v, want PASS: baseline is out of scope for this check", d.Status)
	}
	if *d.PerCheck[0].Observed != 0.05 {
		t.Errorf("observed = %v, want 0.05", *d.PerCheck[0].Observed)
	}
}

func TestEvaluateDeterminism(t *testing.T) {
	checks := []threshold.ResolvedCheck{driftCheck(0.15)}
	results := []variant.Result{okResult("baseline", driftBundle(0.12))}

	first := Evaluate(checks, noCanary(), results)
	for i := 0; i < 10; i++ {
		if got := Evaluate(checks, noCanary(), results); !reflect.DeepEqual(first, got) {
			t.Fatalf("decision differs on rerun %d", i)
		}
	}
}

func TestClassifyCanary(t *testing.T) {
	obs := func(v float64) *float64 { return &v }

	t.Run("high exact-match warns", func(t *testing.T) {
		if got := ClassifyCanary(obs(0.96), 0.90, threshold.GTE); got != CanaryWarn {
			t.Errorf("status = %v, want WARN", got)
		}
	})

	t.Run("boundary warns", func(t *testing.T) {
		if got := ClassifyCanary(obs(0.90), 0.90, threshold.GTE); got != CanaryWarn {
			t.Errorf("status = %v, want WARN at boundary", got)
		}
	})

	t.Run("normal rate is ok", func(t *testing.T) {
		if got := ClassifyCanary(obs(0.80), 0.90, threshold.GTE); got != CanaryOK {
			t.Errorf("status = %v, want OK", got)
		}
	})

	t.Run("nil observation warns", func(t *testing.T) {
		if got := ClassifyCanary(nil, 0.90, threshold.GTE); got != CanaryWarn {
			t.Errorf("status = %v, want WARN for unreadable canary", got)
		}
	})

	t.Run("lte direction", func(t *testing.T) {
		if got := ClassifyCanary(obs(0.10), 0.20, threshold.LTE); got != CanaryWarn {
			t.Errorf("status = %v, want WARN", got)
		}
		if got := ClassifyCanary(obs(0.30), 0.20, threshold.LTE); got != CanaryOK {
			t.Errorf("status = %v, want OK", got)
		}
	})
}

func TestCanaryNeverFailsGate(t *testing.T) {
	canary := threshold.CanaryCheck{
		ID:        "trap_canary",
		Path:      "trap.exact_match",
		AlertRate: 0.90,
		Direction: threshold.GTE,
		Variant:   "trap",
	}
	trapBundle := eval.Bundle{
		"drift": map[string]any{"step_rate": 0.01},
		"trap":  map[string]any{"exact_match": 0.96},
	}
	results := []variant.Result{okResult("trap", trapBundle)}

	d := Evaluate([]threshold.ResolvedCheck{driftCheck(0.15)}, canary, results)

	if d.Canary.Status != CanaryWarn {
		t.Errorf("canary = %v, want WARN", d.Canary.Status)
	}
	if d.Canary.Observed == nil || *d.Canary.Observed != 0.96 {
		t.Errorf("canary observed = %v, want 0.96", d.Canary.Observed)
	}
	if d.Status != Pass {
		t.Errorf("status = %v: canary alone must never fail the gate", d.Status)
	}
}

func TestFinalStatusEscalation(t *testing.T) {
	warned := Decision{Status: Pass, Canary: CanaryResult{Status: CanaryWarn}}

	if got := FinalStatus(warned, false); got != Pass {
		t.Errorf("without policy flag: %v, want PASS", got)
	}
	if got := FinalStatus(warned, true); got != Fail {
		t.Errorf("with policy flag: %v, want FAIL", got)
	}

	hardFail := Decision{Status: Fail}
	if got := FinalStatus(hardFail, false); got != Fail {
		t.Errorf("hard fail: %v, want FAIL", got)
	}
}
