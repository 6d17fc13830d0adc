// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import "strings"

// -----------------------------------------------------------------------------
// Polarity
// -----------------------------------------------------------------------------

// Polarity states whether a larger metric value is better or worse.
type Polarity int

const (
	// HigherIsBetter is the default polarity for scores and rates of success.
	HigherIsBetter Polarity = iota

	// LowerIsBetter applies to drift-, error-, and latency-style metrics.
	LowerIsBetter
)

// String returns the string representation.
func (p Polarity) String() string {
	switch p {
	case HigherIsBetter:
		return "higher_is_better"
	case LowerIsBetter:
		return "lower_is_better"
	default:
		return "unknown"
	}
}

// lowerIsBetterHints are substrings of metric names that flip the default
// polarity. Kept deliberately short; anything subtler belongs in explicit
// tolerance configuration.
var lowerIsBetterHints = []string{
	"drift",
	"error",
	"err_rate",
	"latency",
	"loss",
	"failure",
	"regression",
}

// PolarityFor returns the polarity of a metric by name.
//
// Description:
//
//	Higher is better unless the metric name matches a known drift/error
//	hint, in which case lower is better. Matching is case-insensitive
//	substring matching on the bare metric name.
//
// Inputs:
//   - metric: Bare metric name (the final path segment), e.g. "step_rate".
//
// Outputs:
//   - Polarity: HigherIsBetter or LowerIsBetter.
func PolarityFor(metric string) Polarity {
	lower := strings.ToLower(metric)
	for _, hint := range lowerIsBetterHints {
		if strings.Contains(lower, hint) {
			return LowerIsBetter
		}
	}
	return HigherIsBetter
}
