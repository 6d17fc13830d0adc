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

	"github.com/AleutianAI/driftgate/eval"
)

// -----------------------------------------------------------------------------
// Default Constants
// -----------------------------------------------------------------------------

// Documented fallback constants. Gate evaluation must remain runnable, in
// degraded form, even with a broken or outdated checks document, so every
// field a check needs has a hard-coded default.
const (
	// DefaultDriftMax is the fallback upper bound for drift-style checks.
	DefaultDriftMax = 0.15

	// DefaultCanaryAlertRate is the fallback exact-match rate above which
	// the canary raises a warning.
	DefaultCanaryAlertRate = 0.90
)

// -----------------------------------------------------------------------------
// Direction
// -----------------------------------------------------------------------------

// Direction disambiguates which bound a lone threshold represents.
type Direction int

const (
	// GTE passes when the aggregated value is greater than or equal to the
	// bound. Used for score-style metrics.
	GTE Direction = iota

	// LTE passes when the aggregated value is less than or equal to the
	// bound. Used for drift- and error-style metrics.
	LTE
)

// String returns the string representation.
func (d Direction) String() string {
	switch d {
	case GTE:
		return "gte"
	case LTE:
		return "lte"
	default:
		return "unknown"
	}
}

// ParseDirection parses a direction keyword from a checks document.
//
// Outputs:
//   - Direction: The parsed direction.
//   - error: Non-nil when the keyword is not "gte" or "lte".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "gte":
		return GTE, nil
	case "lte":
		return LTE, nil
	default:
		return GTE, fmt.Errorf("unknown direction %q", s)
	}
}

// -----------------------------------------------------------------------------
// Aggregate
// -----------------------------------------------------------------------------

// Aggregate is the policy for collapsing a parameter sweep into one value.
type Aggregate int

const (
	// AggregateMax is the default policy. Drift-style metrics are
	// worst-case-sensitive: a single bad parameter point must not be
	// averaged away.
	AggregateMax Aggregate = iota

	// AggregateMin keeps the smallest swept value.
	AggregateMin

	// AggregateMean averages the swept values.
	AggregateMean
)

// String returns the string representation.
func (a Aggregate) String() string {
	switch a {
	case AggregateMax:
		return "max"
	case AggregateMin:
		return "min"
	case AggregateMean:
		return "mean"
	default:
		return "unknown"
	}
}

// ParseAggregate parses an aggregation keyword from a checks document.
func ParseAggregate(s string) (Aggregate, error) {
	switch s {
	case "max":
		return AggregateMax, nil
	case "min":
		return AggregateMin, nil
	case "mean":
		return AggregateMean, nil
	default:
		return AggregateMax, fmt.Errorf("unknown aggregate %q", s)
	}
}

// -----------------------------------------------------------------------------
// Check Kinds
// -----------------------------------------------------------------------------

// Kind tags the known check kinds. Checks are a tagged union rather than
// string-keyed lookups so missing-field fallback is explicit per kind.
type Kind int

const (
	// KindBounded is a hard gate check with min/max bounds.
	KindBounded Kind = iota

	// KindCanary is a soft advisory check that never fails the gate.
	KindCanary
)

// String returns the string representation.
func (k Kind) String() string {
	switch k {
	case KindBounded:
		return "bounded"
	case KindCanary:
		return "canary"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Resolved Checks
// -----------------------------------------------------------------------------

// ResolvedCheck is a fully concrete bounded-metric check.
//
// Description:
//
//	Every field is populated before the check reaches the gate evaluator;
//	no partially-resolved check crosses that boundary. At least one of
//	Min/Max is non-nil.
//
// Thread Safety: Immutable value; safe for concurrent use.
type ResolvedCheck struct {
	// ID is the check identifier from the checks document.
	ID string

	// Path selects the metric inside each variant's bundle.
	Path eval.Path

	// Min is the inclusive lower bound, when set.
	Min *float64

	// Max is the inclusive upper bound, when set.
	Max *float64

	// Direction disambiguates a lone bound.
	Direction Direction

	// Aggregate collapses parameter-sweep values.
	Aggregate Aggregate

	// Variants names the variants this check applies to. Empty means all.
	Variants []string
}

// Bound returns the single bound the direction points at, for reporting.
//
// With both bounds set, GTE reports Min and LTE reports Max.
func (c ResolvedCheck) Bound() float64 {
	switch c.Direction {
	case GTE:
		if c.Min != nil {
			return *c.Min
		}
	case LTE:
		if c.Max != nil {
			return *c.Max
		}
	}
	// One of the bounds is always set by resolution.
	if c.Min != nil {
		return *c.Min
	}
	if c.Max != nil {
		return *c.Max
	}
	return 0
}

// CanaryCheck is a fully concrete soft canary threshold.
//
// Thread Safety: Immutable value; safe for concurrent use.
type CanaryCheck struct {
	// ID is the check identifier from the checks document.
	ID string

	// Path selects the canary metric, typically an exact-match rate on an
	// adversarial dataset variant.
	Path eval.Path

	// AlertRate is the threshold past which the canary warns.
	AlertRate float64

	// Direction orients the threshold. GTE means "warn when observed is at
	// or above AlertRate".
	Direction Direction

	// Variant names the variant whose bundle carries the canary metric.
	Variant string
}

// -----------------------------------------------------------------------------
// Defaults
// -----------------------------------------------------------------------------

// Defaults carries the caller-supplied fallbacks for a bounded check.
//
// Any field left unset (nil bounds, empty path) falls back further to the
// package constants during resolution.
type Defaults struct {
	Path      eval.Path
	Min       *float64
	Max       *float64
	Direction Direction
	Aggregate Aggregate
	Variants  []string
}

// CanaryDefaults carries the caller-supplied fallbacks for a canary check.
type CanaryDefaults struct {
	Path      eval.Path
	AlertRate float64
	Direction Direction
	Variant   string
}

// F64 returns a pointer to v, a convenience for building Defaults.
func F64(v float64) *float64 { return &v }
