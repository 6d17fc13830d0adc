// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate applies resolved thresholds to variant results and produces
// the hard PASS/FAIL decision plus the advisory canary state.
//
// Everything in this package is a pure function over already-materialized
// inputs: identical inputs always produce an identical decision, which is
// what makes release gating reproducible and auditable.
package gate

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/driftgate/eval/threshold"
	"github.com/AleutianAI/driftgate/eval/variant"
)

// -----------------------------------------------------------------------------
// Status Types
// -----------------------------------------------------------------------------

// Status is the hard gate verdict.
type Status int

const (
	// Pass means every hard check passed.
	Pass Status = iota

	// Fail means at least one hard check failed or a required producer
	// errored.
	Fail
)

// String returns the string representation.
func (s Status) String() string {
	switch s {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status as its string form so persisted artifacts
// stay readable and backward-compatible.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form written by MarshalJSON.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case "PASS":
		*s = Pass
	case "FAIL":
		*s = Fail
	default:
		return fmt.Errorf("unknown gate status %q", raw)
	}
	return nil
}

// CanaryStatus is the advisory canary verdict. It never influences Status.
type CanaryStatus int

const (
	// CanaryOK means the canary metric is within expectations.
	CanaryOK CanaryStatus = iota

	// CanaryWarn means the canary threshold tripped; a human should look,
	// but the gate is unaffected unless the caller escalates explicitly.
	CanaryWarn
)

// String returns the string representation.
func (s CanaryStatus) String() string {
	switch s {
	case CanaryOK:
		return "OK"
	case CanaryWarn:
		return "WARN"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the canary status as its string form.
func (s CanaryStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form written by MarshalJSON.
func (s *CanaryStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case "OK":
		*s = CanaryOK
	case "WARN":
		*s = CanaryWarn
	default:
		return fmt.Errorf("unknown canary status %q", raw)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Decision Types
// -----------------------------------------------------------------------------

// CheckResult is the outcome of one resolved check.
type CheckResult struct {
	// CheckID names the check.
	CheckID string `json:"check_id"`

	// Observed is the aggregated value the check saw. Nil when no variant
	// contributed a value; nil always fails.
	Observed *float64 `json:"observed"`

	// Bound is the bound the check's direction points at, for reporting.
	Bound float64 `json:"bound"`

	// Direction is the check's comparison direction.
	Direction string `json:"direction"`

	// Passed reports whether the check passed.
	Passed bool `json:"passed"`

	// Reason explains a failure in human-readable form. Empty on pass.
	Reason string `json:"reason,omitempty"`
}

// CanaryResult is the advisory canary outcome.
type CanaryResult struct {
	// Status is OK or WARN.
	Status CanaryStatus `json:"status"`

	// Observed is the canary metric value, nil when unavailable.
	Observed *float64 `json:"observed"`

	// Threshold is the alert threshold in effect.
	Threshold float64 `json:"threshold"`
}

// Decision is the complete gate outcome for one invocation.
//
// Invariant: Status is Pass iff every entry of PerCheck has Passed == true.
// Canary never influences Status.
type Decision struct {
	// Status is the hard verdict.
	Status Status `json:"status"`

	// PerCheck is the complete per-check breakdown.
	PerCheck []CheckResult `json:"per_check"`

	// Canary is the advisory canary outcome.
	Canary CanaryResult `json:"canary"`
}

// -----------------------------------------------------------------------------
// Evaluation
// -----------------------------------------------------------------------------

// Evaluate applies the resolved checks and the canary to variant results.
//
// Description:
//
//	For each check, the values of the variants it applies to are collapsed
//	with the check's aggregate policy and compared against its bounds. A
//	failed variant, a missing metric, or an empty aggregation input fails
//	the check regardless of bounds: unknown is never treated as passing.
//	Pure function; no I/O, no clock, no randomness.
//
// Inputs:
//   - checks: Fully resolved checks. Partially-resolved checks never reach
//     this function; the threshold resolver guarantees concreteness.
//   - canary: The resolved canary threshold.
//   - results: The complete variant result set (join semantics: callers
//     must not invoke Evaluate before every required variant finished).
//
// Outputs:
//   - Decision: Status, per-check table, and canary state.
func Evaluate(checks []threshold.ResolvedCheck, canary threshold.CanaryCheck, results []variant.Result) Decision {
	decision := Decision{
		Status:   Pass,
		PerCheck: make([]CheckResult, 0, len(checks)),
	}

	for _, check := range checks {
		res := evaluateCheck(check, results)
		if !res.Passed {
			decision.Status = Fail
		}
		decision.PerCheck = append(decision.PerCheck, res)
	}

	decision.Canary = evaluateCanary(canary, results)

	return decision
}

// evaluateCheck runs a single check against the result set.
func evaluateCheck(check threshold.ResolvedCheck, results []variant.Result) CheckResult {
	out := CheckResult{
		CheckID:   check.ID,
		Bound:     check.Bound(),
		Direction: check.Direction.String(),
	}

	selected := selectResults(check.Variants, results)
	if len(selected) == 0 {
		out.Reason = "no variant results matched the check"
		return out
	}

	values := make([]float64, 0, len(selected))
	for _, res := range selected {
		if res.Failed() {
			out.Reason = fmt.Sprintf("variant %s failed: %v", res.Name, res.Err)
			return out
		}
		v, err := check.Path.Resolve(res.Bundle)
		if err != nil {
			out.Reason = fmt.Sprintf("variant %s: %v", res.Name, err)
			return out
		}
		values = append(values, v)
	}

	agg := aggregate(check.Aggregate, values)
	out.Observed = &agg
	out.Passed, out.Reason = compare(check, agg)
	return out
}

// compare applies the check's bounds inclusively.
func compare(check threshold.ResolvedCheck, observed float64) (bool, string) {
	if check.Min != nil && observed < *check.Min {
		return false, fmt.Sprintf("observed %.6g below min %.6g", observed, *check.Min)
	}
	if check.Max != nil && observed > *check.Max {
		return false, fmt.Sprintf("observed %.6g above max %.6g", observed, *check.Max)
	}
	// With a lone bound, direction picks the comparison; both branches
	// above already enforce it because resolution only sets the bound the
	// direction refers to. Boundary equality passes.
	return true, ""
}

// evaluateCanary extracts the canary metric and classifies it.
func evaluateCanary(canary threshold.CanaryCheck, results []variant.Result) CanaryResult {
	out := CanaryResult{Threshold: canary.AlertRate}

	var observed *float64
	for _, res := range results {
		if canary.Variant != "" && res.Name != canary.Variant {
			continue
		}
		if res.Bundle == nil {
			continue
		}
		v, err := canary.Path.Resolve(res.Bundle)
		if err != nil {
			continue
		}
		// Worst case across matching variants: the most alarming value wins.
		if observed == nil || moreAlarming(canary.Direction, v, *observed) {
			value := v
			observed = &value
		}
	}

	out.Observed = observed
	out.Status = ClassifyCanary(observed, canary.AlertRate, canary.Direction)
	return out
}

// moreAlarming reports whether a is closer to tripping the canary than b.
func moreAlarming(dir threshold.Direction, a, b float64) bool {
	if dir == threshold.GTE {
		return a > b
	}
	return a < b
}

// ClassifyCanary classifies a single soft threshold observation.
//
// Description:
//
//	Runs the same bound logic as the hard checks restricted to one metric,
//	but the result is advisory: it never fails the surrounding pipeline.
//	An unexpectedly high exact-match rate on an adversarial dataset often
//	means the harness is leaking the answer; that must alert a human
//	without blocking otherwise-valid releases. A nil observation warns,
//	because an unreadable leak signal is itself suspicious.
//
// Inputs:
//   - observed: The canary metric value, nil when unavailable.
//   - alertRate: The threshold.
//   - dir: GTE warns when observed >= alertRate; LTE warns when <=.
//
// Outputs:
//   - CanaryStatus: CanaryOK or CanaryWarn.
func ClassifyCanary(observed *float64, alertRate float64, dir threshold.Direction) CanaryStatus {
	if observed == nil {
		return CanaryWarn
	}
	switch dir {
	case threshold.GTE:
		if *observed >= alertRate {
			return CanaryWarn
		}
	case threshold.LTE:
		if *observed <= alertRate {
			return CanaryWarn
		}
	}
	return CanaryOK
}

// FinalStatus applies the caller's canary escalation policy.
//
// Description:
//
//	WARN escalates to a hard failure only when the caller sets the
//	fail-on-canary-warn policy flag. This is a pure input-driven branch,
//	deliberately outside the classifier: escalation is pipeline policy,
//	not a property of the canary itself.
func FinalStatus(d Decision, failOnCanaryWarn bool) Status {
	if d.Status == Fail {
		return Fail
	}
	if failOnCanaryWarn && d.Canary.Status == CanaryWarn {
		return Fail
	}
	return Pass
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// selectResults filters results to the named variants; empty names selects
// every result.
func selectResults(names []string, results []variant.Result) []variant.Result {
	if len(names) == 0 {
		return results
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []variant.Result
	for _, res := range results {
		if want[res.Name] {
			out = append(out, res)
		}
	}
	return out
}

// aggregate collapses swept values with the given policy. Callers guarantee
// values is non-empty.
func aggregate(policy threshold.Aggregate, values []float64) float64 {
	switch policy {
	case threshold.AggregateMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case threshold.AggregateMean:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	default: // AggregateMax
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	}
}
