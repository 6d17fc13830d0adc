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
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/driftgate/eval"
)

// -----------------------------------------------------------------------------
// Categories
// -----------------------------------------------------------------------------

// Category classifies a single job/metric pair between two snapshots.
type Category int

const (
	// CategoryUnchanged means the metric moved within tolerance.
	CategoryUnchanged Category = iota

	// CategoryImproved means the metric moved beyond tolerance in the
	// better direction for its polarity.
	CategoryImproved

	// CategoryRegressed means the metric moved beyond tolerance in the
	// worse direction for its polarity.
	CategoryRegressed

	// CategoryNew means the metric exists only in the current snapshot.
	CategoryNew

	// CategoryRemoved means the metric exists only in the baseline.
	CategoryRemoved
)

// String returns the human-readable category name.
func (c Category) String() string {
	switch c {
	case CategoryUnchanged:
		return "UNCHANGED"
	case CategoryImproved:
		return "IMPROVED"
	case CategoryRegressed:
		return "REGRESSED"
	case CategoryNew:
		return "NEW"
	case CategoryRemoved:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON serializes the category as its string form.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes the string form written by MarshalJSON.
func (c *Category) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case "UNCHANGED":
		*c = CategoryUnchanged
	case "IMPROVED":
		*c = CategoryImproved
	case "REGRESSED":
		*c = CategoryRegressed
	case "NEW":
		*c = CategoryNew
	case "REMOVED":
		*c = CategoryRemoved
	default:
		return fmt.Errorf("unknown classification category %q", raw)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Tolerance Configuration
// -----------------------------------------------------------------------------

// relativeToleranceFraction is the default tolerance as a fraction of the
// baseline value, used when no explicit per-metric tolerance is configured.
const relativeToleranceFraction = 0.01

// minAbsoluteTolerance floors the relative tolerance so a zero baseline
// does not classify every nonzero delta as a change.
const minAbsoluteTolerance = 1e-9

// ToleranceConfig controls how large a delta must be before a metric is
// classified as changed.
type ToleranceConfig struct {
	// PerMetric maps bare metric names (the last path segment) to an
	// absolute tolerance. Metrics without an entry fall back to a
	// relative tolerance of the baseline value.
	PerMetric map[string]float64
}

// tolerance returns the comparison tolerance for metric against baseline.
func (t ToleranceConfig) tolerance(metric string, baseline float64) float64 {
	if tol, ok := t.PerMetric[metric]; ok {
		return tol
	}
	return math.Max(relativeToleranceFraction*math.Abs(baseline), minAbsoluteTolerance)
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// Classification is the diff verdict for one job/metric pair.
type Classification struct {
	// JobID identifies the job the metric belongs to.
	JobID string `json:"job_id"`

	// Metric is the dotted metric path within the job's bundle.
	Metric string `json:"metric"`

	// Baseline is the baseline value. Nil when the metric is new.
	Baseline *float64 `json:"baseline,omitempty"`

	// Current is the current value. Nil when the metric was removed.
	Current *float64 `json:"current,omitempty"`

	// Category is the classification outcome.
	Category Category `json:"category"`
}

// Summary counts classifications per category.
type Summary struct {
	Unchanged int `json:"unchanged"`
	Improved  int `json:"improved"`
	Regressed int `json:"regressed"`
	New       int `json:"new"`
	Removed   int `json:"removed"`
}

// Summarize tallies a classification list into per-category counts.
func Summarize(classifications []Classification) Summary {
	var s Summary
	for _, c := range classifications {
		switch c.Category {
		case CategoryUnchanged:
			s.Unchanged++
		case CategoryImproved:
			s.Improved++
		case CategoryRegressed:
			s.Regressed++
		case CategoryNew:
			s.New++
		case CategoryRemoved:
			s.Removed++
		}
	}
	return s
}

// -----------------------------------------------------------------------------
// Differ
// -----------------------------------------------------------------------------

// Diff classifies every job/metric pair across two snapshots.
//
// Description:
//
//	Jobs and metrics are matched by identifier, never by position. A job
//	or metric present on only one side classifies as NEW (current only)
//	or REMOVED (baseline only). Pairs present on both sides compare the
//	scalar delta against the metric's tolerance; deltas within tolerance
//	are UNCHANGED, and larger deltas classify as IMPROVED or REGRESSED
//	according to the metric's polarity. Swapping baseline and current
//	swaps IMPROVED and REGRESSED verdicts exactly.
//
// Inputs:
//   - baseline: The prior snapshot.
//   - current: The fresh snapshot.
//   - tol: Tolerance configuration. The zero value uses relative fallback
//     tolerances for every metric.
//
// Outputs:
//   - []Classification: One entry per job/metric pair, sorted by job then
//     metric so output is deterministic.
func Diff(baseline, current Snapshot, tol ToleranceConfig) []Classification {
	var out []Classification

	for _, jobID := range unionKeys(baseline.Jobs, current.Jobs) {
		base, inBase := baseline.Jobs[jobID]
		cur, inCur := current.Jobs[jobID]

		baseMetrics := flatten(base)
		curMetrics := flatten(cur)

		for _, metric := range unionMetricKeys(baseMetrics, curMetrics) {
			bv, hasBase := baseMetrics[metric]
			cv, hasCur := curMetrics[metric]

			c := Classification{JobID: jobID, Metric: metric}
			switch {
			case hasBase && hasCur:
				c.Baseline = ptr(bv)
				c.Current = ptr(cv)
				c.Category = classify(metric, bv, cv, tol)
			case hasCur:
				c.Current = ptr(cv)
				c.Category = CategoryNew
			default:
				c.Baseline = ptr(bv)
				c.Category = CategoryRemoved
			}
			out = append(out, c)
		}

		// A job on one side with no scalar metrics still surfaces as a
		// whole-job add or remove.
		if len(baseMetrics) == 0 && len(curMetrics) == 0 {
			switch {
			case inCur && !inBase:
				out = append(out, Classification{JobID: jobID, Category: CategoryNew})
			case inBase && !inCur:
				out = append(out, Classification{JobID: jobID, Category: CategoryRemoved})
			}
		}
	}
	return out
}

// classify compares a metric present in both snapshots.
func classify(metric string, baseline, current float64, tol ToleranceConfig) Category {
	bare := eval.Path(metric).Metric()
	delta := current - baseline
	if math.Abs(delta) <= tol.tolerance(bare, baseline) {
		return CategoryUnchanged
	}

	improved := delta > 0
	if eval.PolarityFor(bare) == eval.LowerIsBetter {
		improved = delta < 0
	}
	if improved {
		return CategoryImproved
	}
	return CategoryRegressed
}

// flatten walks a bundle and collects every scalar leaf under a dotted path.
func flatten(b eval.Bundle) map[string]float64 {
	out := make(map[string]float64)
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for key, value := range node {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			// Clone and the JSON decoder produce different nested map
			// shapes; both must traverse.
			switch v := value.(type) {
			case eval.Bundle:
				walk(path, v)
			case map[string]any:
				walk(path, v)
			default:
				if f, ok := asFloat(v); ok {
					out[path] = f
				}
			}
		}
	}
	walk("", b)
	return out
}

// asFloat coerces the numeric types a decoded bundle can carry.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func unionKeys(a, b map[string]eval.Bundle) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unionMetricKeys(a, b map[string]float64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ptr(v float64) *float64 { return &v }
