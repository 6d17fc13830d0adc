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
	"log/slog"

	"github.com/AleutianAI/driftgate/eval"
)

// -----------------------------------------------------------------------------
// Resolver
// -----------------------------------------------------------------------------

// Resolver resolves named checks from a document into concrete checks.
//
// Description:
//
//	Resolution is a pure read with logging as its only side effect. It
//	never fails: a missing document, a missing check, or a malformed field
//	substitutes the caller-supplied default (and, past that, the package
//	default constants), so gate evaluation remains runnable in degraded
//	form with a broken or outdated checks file.
//
// Thread Safety: Safe for concurrent use.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver.
//
// Inputs:
//   - logger: Logger for fallback warnings. If nil, uses slog.Default().
//
// Outputs:
//   - *Resolver: The new resolver. Never nil.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve looks up a bounded check by id and fills every gap with defaults.
//
// Description:
//
//	The returned check is fully concrete: path, direction, aggregate and at
//	least one bound are always set. Field-level fallback order is document
//	value, then caller default, then package constant.
//
// Inputs:
//   - doc: Parsed checks document. May be nil or partial.
//   - checkID: The check identifier to look up.
//   - def: Caller-supplied defaults for missing fields.
//
// Outputs:
//   - ResolvedCheck: The concrete check. Never partially resolved.
func (r *Resolver) Resolve(doc *Document, checkID string, def Defaults) ResolvedCheck {
	resolved := ResolvedCheck{
		ID:        checkID,
		Path:      def.Path,
		Min:       def.Min,
		Max:       def.Max,
		Direction: def.Direction,
		Aggregate: def.Aggregate,
		Variants:  def.Variants,
	}

	entry := r.lookup(doc, checkID)
	if entry != nil {
		r.applyEntry(&resolved, entry)
	}

	// Terminal fallback: a check with no bound at all cannot gate anything,
	// so it degrades to the documented drift ceiling.
	if resolved.Min == nil && resolved.Max == nil {
		r.logger.Warn("check has no bound, using default drift ceiling",
			slog.String("check_id", checkID),
			slog.Float64("default_max", DefaultDriftMax),
		)
		resolved.Max = F64(DefaultDriftMax)
		resolved.Direction = LTE
	}
	if resolved.Path == "" {
		r.logger.Warn("check has no metric path",
			slog.String("check_id", checkID),
		)
	}

	return resolved
}

// ResolveCanary looks up a canary check by id and fills gaps with defaults.
//
// Outputs:
//   - CanaryCheck: The concrete canary threshold. AlertRate falls back to
//     DefaultCanaryAlertRate when neither document nor caller provide one.
func (r *Resolver) ResolveCanary(doc *Document, checkID string, def CanaryDefaults) CanaryCheck {
	resolved := CanaryCheck{
		ID:        checkID,
		Path:      def.Path,
		AlertRate: def.AlertRate,
		Direction: def.Direction,
		Variant:   def.Variant,
	}
	if resolved.AlertRate == 0 {
		resolved.AlertRate = DefaultCanaryAlertRate
	}

	entry := r.lookup(doc, checkID)
	if entry != nil {
		if entry.MetricPath != "" {
			resolved.Path = eval.Path(entry.MetricPath)
		}
		if entry.CanaryAlertExactRate != nil {
			resolved.AlertRate = *entry.CanaryAlertExactRate
		}
		if entry.Direction != "" {
			dir, err := ParseDirection(entry.Direction)
			if err != nil {
				r.logger.Warn("malformed canary direction, keeping default",
					slog.String("check_id", checkID),
					slog.String("error", err.Error()),
				)
			} else {
				resolved.Direction = dir
			}
		}
		if len(entry.Variants) > 0 {
			resolved.Variant = entry.Variants[0]
		}
	}
	if doc != nil && resolved.Variant == "" {
		resolved.Variant = doc.CanaryVariant
	}

	return resolved
}

// ResolveAll expands every bounded check in the document, one ResolvedCheck
// per metric entry. Canary-kind entries are skipped; they resolve through
// ResolveCanary.
func (r *Resolver) ResolveAll(doc *Document, def Defaults) []ResolvedCheck {
	if doc == nil {
		return nil
	}
	var out []ResolvedCheck
	for i := range doc.Checks {
		entry := &doc.Checks[i]
		if entry.Kind == KindCanary.String() {
			continue
		}
		if len(entry.Metrics) == 0 {
			out = append(out, r.Resolve(doc, entry.ID, def))
			continue
		}
		for j := range entry.Metrics {
			out = append(out, r.resolveMetric(entry, def, j))
		}
	}
	return out
}

// lookup finds a check entry, logging when the document or entry is absent.
func (r *Resolver) lookup(doc *Document, checkID string) *CheckEntry {
	if doc == nil {
		r.logger.Warn("no checks document, resolving from defaults",
			slog.String("check_id", checkID),
		)
		return nil
	}
	if err := doc.Validate(); err != nil {
		r.logger.Warn("checks document failed validation, resolving best-effort",
			slog.String("check_id", checkID),
			slog.String("error", err.Error()),
		)
	}
	entry := doc.check(checkID)
	if entry == nil {
		r.logger.Warn("check not found in document, resolving from defaults",
			slog.String("check_id", checkID),
		)
	}
	return entry
}

// applyEntry overlays the document entry onto the resolved check, using the
// entry's first metric.
func (r *Resolver) applyEntry(resolved *ResolvedCheck, entry *CheckEntry) {
	if len(entry.Metrics) > 0 {
		applyMetric(resolved, entry.Metrics[0])
	}
	r.applyShared(resolved, entry)
}

// applyMetric overlays one metric entry's path and bounds.
func applyMetric(resolved *ResolvedCheck, m MetricEntry) {
	if m.Path != "" {
		resolved.Path = eval.Path(m.Path)
	}
	if m.Min != nil {
		resolved.Min = m.Min
	}
	if m.Max != nil {
		resolved.Max = m.Max
	}
}

// applyShared overlays the fields shared by every metric of an entry.
func (r *Resolver) applyShared(resolved *ResolvedCheck, entry *CheckEntry) {
	if entry.Direction != "" {
		dir, err := ParseDirection(entry.Direction)
		if err != nil {
			r.logger.Warn("malformed direction, keeping default",
				slog.String("check_id", entry.ID),
				slog.String("error", err.Error()),
			)
		} else {
			resolved.Direction = dir
		}
	}
	if entry.Aggregate != "" {
		agg, err := ParseAggregate(entry.Aggregate)
		if err != nil {
			r.logger.Warn("malformed aggregate, keeping default",
				slog.String("check_id", entry.ID),
				slog.String("error", err.Error()),
			)
		} else {
			resolved.Aggregate = agg
		}
	}
	if len(entry.Variants) > 0 {
		resolved.Variants = entry.Variants
	}
}

// resolveMetric builds a resolved check for the idx-th metric of an entry.
func (r *Resolver) resolveMetric(entry *CheckEntry, def Defaults, idx int) ResolvedCheck {
	resolved := ResolvedCheck{
		ID:        entry.ID,
		Path:      def.Path,
		Min:       def.Min,
		Max:       def.Max,
		Direction: def.Direction,
		Aggregate: def.Aggregate,
		Variants:  def.Variants,
	}
	applyMetric(&resolved, entry.Metrics[idx])
	r.applyShared(&resolved, entry)
	if resolved.Min == nil && resolved.Max == nil {
		resolved.Max = F64(DefaultDriftMax)
		resolved.Direction = LTE
	}
	return resolved
}
