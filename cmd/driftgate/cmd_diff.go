// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/driftgate/eval/snapshot"
	"github.com/AleutianAI/driftgate/eval/threshold"
	"github.com/AleutianAI/driftgate/pkg/ux"
)

// runDiff classifies every metric of two snapshot files against each other.
func runDiff(_ *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Close()

	baseline, err := snapshot.LoadFile(args[0])
	if err != nil {
		return fmt.Errorf("loading baseline snapshot: %w", err)
	}
	current, err := snapshot.LoadFile(args[1])
	if err != nil {
		return fmt.Errorf("loading current snapshot: %w", err)
	}

	// Tolerances come from the checks document when one is supplied;
	// otherwise the relative fallback applies per metric.
	tol := snapshot.ToleranceConfig{}
	if checksPath != "" {
		doc, err := threshold.Load(checksPath)
		if err != nil {
			return fmt.Errorf("loading checks document: %w", err)
		}
		tol.PerMetric = doc.Tolerances
	}

	classifications := snapshot.Diff(baseline, current, tol)
	summary := snapshot.Summarize(classifications)

	for _, c := range classifications {
		line := fmt.Sprintf("%-10s %s/%s", c.Category, c.JobID, c.Metric)
		switch {
		case c.Baseline != nil && c.Current != nil:
			line += fmt.Sprintf("  %.6g -> %.6g", *c.Baseline, *c.Current)
		case c.Current != nil:
			line += fmt.Sprintf("  -> %.6g", *c.Current)
		case c.Baseline != nil:
			line += fmt.Sprintf("  %.6g ->", *c.Baseline)
		}
		switch c.Category {
		case snapshot.CategoryRegressed:
			ux.Fail(line)
		case snapshot.CategoryImproved:
			ux.Pass(line)
		default:
			ux.Info(line)
		}
	}
	fmt.Println()
	ux.Info(fmt.Sprintf("%d unchanged, %d improved, %d regressed, %d new, %d removed",
		summary.Unchanged, summary.Improved, summary.Regressed, summary.New, summary.Removed))

	if failOnRegression && summary.Regressed > 0 {
		return errGateFailed
	}
	return nil
}
