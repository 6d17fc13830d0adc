// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package eval provides the shared primitives of the driftgate decision layer.

# Overview

driftgate is the decision layer of an automated evaluation pipeline. External
benchmark producers emit raw metric documents; driftgate decides whether a
release is acceptable (hard gate), flags suspicious-but-passing results (soft
canary warning), and classifies how a new measurement snapshot differs from a
prior baseline.

This package holds the vocabulary every component speaks:

  - Bundle: an arbitrarily nested metric document (metric name -> number or
    nested sub-document), the wire format producers emit.
  - Path: a dot-delimited selector ("drift.step_rate") addressing a scalar
    inside a Bundle. Resolution fails explicitly with ErrPathNotFound; a
    missing metric is never silently read as zero.
  - Polarity: whether a larger value of a metric is better or worse, used by
    the snapshot differ to orient Improved/Regressed.

# Architecture

	┌──────────────────────────────────────────────────────────────┐
	│                     driftgate decision layer                  │
	│                                                               │
	│  producers ──► variant.Runner ──► gate.Evaluate ──► artifact  │
	│   (external)    (collect)          + canary         (persist)  │
	│                                       │                        │
	│                               snapshot.Diff ◄── prior artifact │
	└──────────────────────────────────────────────────────────────┘

# Thread Safety

All types in this package are immutable values; they are safe for concurrent
use without synchronization.
*/
package eval
