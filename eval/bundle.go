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

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrPathNotFound indicates the metric path does not resolve to a value.
	ErrPathNotFound = errors.New("metric path not found")

	// ErrNotScalar indicates the path resolved to a non-numeric value.
	ErrNotScalar = errors.New("metric path is not a scalar")

	// ErrEmptyPath indicates an empty metric path was supplied.
	ErrEmptyPath = errors.New("empty metric path")
)

// -----------------------------------------------------------------------------
// Bundle
// -----------------------------------------------------------------------------

// Bundle is a nested metric document produced by an external benchmark run.
//
// Description:
//
//	Keys map to either a numeric scalar or a nested sub-document. Bundles
//	are the raw material of every gate decision; they are treated as
//	read-only once handed to the engine.
//
// Thread Safety: Callers must not mutate a Bundle after handing it to any
// driftgate component.
type Bundle map[string]any

// Clone returns a deep copy of the bundle.
//
// Nested sub-documents are copied recursively so the copy can be stored in
// an immutable snapshot without aliasing the producer's memory.
func (b Bundle) Clone() Bundle {
	if b == nil {
		return nil
	}
	out := make(Bundle, len(b))
	for k, v := range b {
		switch nested := v.(type) {
		case Bundle:
			out[k] = nested.Clone()
		case map[string]any:
			out[k] = Bundle(nested).Clone()
		default:
			out[k] = v
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Path
// -----------------------------------------------------------------------------

// Path is a dot-delimited identifier selecting a scalar inside a Bundle.
//
// Example: Path("drift.step_rate") selects bundle["drift"]["step_rate"].
type Path string

// String returns the raw path text.
func (p Path) String() string { return string(p) }

// Metric returns the final segment of the path, the bare metric name.
//
// Example: Path("drift.step_rate").Metric() == "step_rate".
func (p Path) Metric() string {
	segs := strings.Split(string(p), ".")
	return segs[len(segs)-1]
}

// Resolve traverses the bundle and returns the scalar the path addresses.
//
// Description:
//
//	Each dot-separated segment descends one level of nesting. Resolution
//	fails explicitly when a segment is absent (ErrPathNotFound) or when
//	the terminal value is not numeric (ErrNotScalar). It never substitutes
//	zero for a missing metric; fallback policy belongs to the caller.
//
// Inputs:
//   - b: The bundle to traverse. A nil bundle resolves nothing.
//
// Outputs:
//   - float64: The scalar value at the path.
//   - error: ErrEmptyPath, ErrPathNotFound, or ErrNotScalar, wrapped with
//     the offending path for context.
func (p Path) Resolve(b Bundle) (float64, error) {
	if strings.TrimSpace(string(p)) == "" {
		return 0, ErrEmptyPath
	}

	var cur any = map[string]any(b)
	for _, seg := range strings.Split(string(p), ".") {
		node, ok := asDocument(cur)
		if !ok {
			return 0, fmt.Errorf("resolving %q: %w", p, ErrPathNotFound)
		}
		cur, ok = node[seg]
		if !ok {
			return 0, fmt.Errorf("resolving %q: segment %q: %w", p, seg, ErrPathNotFound)
		}
	}

	v, ok := asScalar(cur)
	if !ok {
		return 0, fmt.Errorf("resolving %q: %w", p, ErrNotScalar)
	}
	return v, nil
}

// asDocument normalizes the nested map shapes produced by JSON and YAML
// decoding into a single traversable form.
func asDocument(v any) (map[string]any, bool) {
	switch doc := v.(type) {
	case Bundle:
		return doc, true
	case map[string]any:
		return doc, true
	default:
		return nil, false
	}
}

// asScalar coerces the numeric types JSON and YAML decoders emit.
func asScalar(v any) (float64, bool) {
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
