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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/driftgate/pkg/ux"
)

// --- Global Command Variables ---
var (
	checksPath       string
	producerCommand  string
	producerArgs     []string
	runsDir          string
	artifactDir      string
	baselineDir      string
	metricPath       string
	parallelism      int
	producerTimeout  time.Duration
	failOnCanaryWarn bool
	updateBaseline   bool
	metricsListen    string
	failOnRegression bool
	showRecord       bool
	logLevel         string
	logDir           string
	quietLogs        bool
	plainOutput      bool

	rootCmd = &cobra.Command{
		Use:   "driftgate",
		Short: "A regression gate for automated benchmark evaluation pipelines",
		Long: `driftgate runs configuration variants of a benchmark producer, applies
threshold checks to the metrics they emit, classifies the results
against a stored baseline, and leaves a versioned run record behind.

Exit codes: 0 when the gate passes, 1 when it fails, 2 when the gate
could not run at all.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			ux.SetPlain(plainOutput)
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run all variants, evaluate the gate, and write the run record",
		RunE:  runGate, // Defined in cmd_run.go
	}

	diffCmd = &cobra.Command{
		Use:   "diff [baseline.json] [current.json]",
		Short: "Classify the differences between two metric snapshots",
		Args:  cobra.ExactArgs(2),
		RunE:  runDiff, // Defined in cmd_diff.go
	}

	latestCmd = &cobra.Command{
		Use:   "latest",
		Short: "Resolve the most recent run record",
		RunE:  runLatest, // Defined in cmd_latest.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Minimum log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files (disabled when empty)")
	rootCmd.PersistentFlags().BoolVar(&quietLogs, "quiet", false, "Suppress stderr logging")
	rootCmd.PersistentFlags().StringVar(&artifactDir, "artifact-dir", "artifacts", "Directory for run records")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Disable styled terminal output")

	runCmd.Flags().StringVar(&checksPath, "checks", "checks.yaml", "Path to the checks document")
	runCmd.Flags().StringVar(&producerCommand, "producer", "", "Command invoked once per variant to produce metrics (required)")
	runCmd.Flags().StringArrayVar(&producerArgs, "producer-arg", nil, "Argument passed to the producer (repeatable)")
	runCmd.Flags().StringVar(&runsDir, "runs-dir", "runs", "Root directory for per-variant output")
	runCmd.Flags().StringVar(&baselineDir, "baseline-dir", "baselines", "Directory holding the baseline snapshot")
	runCmd.Flags().StringVar(&metricPath, "metric", "", "Dotted path of the headline metric inside each bundle")
	runCmd.Flags().IntVar(&parallelism, "parallelism", 2, "Maximum concurrent variant runs")
	runCmd.Flags().DurationVar(&producerTimeout, "timeout", 30*time.Minute, "Per-variant producer timeout")
	runCmd.Flags().BoolVar(&failOnCanaryWarn, "fail-on-canary-warn", false, "Escalate a canary warning to a gate failure")
	runCmd.Flags().BoolVar(&updateBaseline, "update-baseline", false, "Store the current snapshot as the new baseline when the gate passes")
	runCmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Address to serve Prometheus metrics on for the run's duration (disabled when empty)")

	diffCmd.Flags().StringVar(&checksPath, "checks", "", "Checks document supplying per-metric tolerances (optional)")
	diffCmd.Flags().BoolVar(&failOnRegression, "fail-on-regression", false, "Exit 1 when any metric regressed")

	latestCmd.Flags().BoolVar(&showRecord, "record", false, "Print the full record JSON instead of its path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(latestCmd)
}
