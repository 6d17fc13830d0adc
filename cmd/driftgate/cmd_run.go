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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/driftgate/eval"
	"github.com/AleutianAI/driftgate/eval/artifact"
	"github.com/AleutianAI/driftgate/eval/gate"
	"github.com/AleutianAI/driftgate/eval/snapshot"
	"github.com/AleutianAI/driftgate/eval/telemetry"
	"github.com/AleutianAI/driftgate/eval/threshold"
	"github.com/AleutianAI/driftgate/eval/variant"
	"github.com/AleutianAI/driftgate/pkg/logging"
	"github.com/AleutianAI/driftgate/pkg/ux"
)

// baselineName is the snapshot slot the gate compares against and,
// with --update-baseline, promotes into.
const baselineName = "baseline"

func newLogger() *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		LogDir:  logDir,
		Service: "driftgate",
		Quiet:   quietLogs,
	})
}

// runGate executes the complete gate: variants, checks, classification,
// and the run record.
func runGate(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	defer logger.Close()

	if producerCommand == "" {
		return errors.New("--producer is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runID := uuid.NewString()
	log := logger.With("run_id", runID)

	// 1. Load and resolve the checks document.
	doc := loadChecks(checksPath, log)

	resolver := threshold.NewResolver(log.Slog())
	checks := resolver.ResolveAll(doc, threshold.Defaults{Path: eval.Path(metricPath)})

	canaryID, hasCanary := findCanaryCheck(doc)
	var canary threshold.CanaryCheck
	if hasCanary {
		canary = resolver.ResolveCanary(doc, canaryID, threshold.CanaryDefaults{
			Path: eval.Path(metricPath),
		})
	}

	// 2. Optional metrics endpoint for the run's duration.
	sink, err := newSink(log)
	if err != nil {
		return err
	}
	defer sink.Close()

	// 3. Run every variant through the producer.
	variants := declaredVariants(doc)
	log.Info("gate run started",
		"checks", len(checks),
		"variants", len(variants),
		"producer", producerCommand,
	)

	runner := variant.NewRunner(log.Slog(),
		variant.WithRunsDir(runsDir),
		variant.WithMetricPath(eval.Path(metricPath)),
		variant.WithParallelism(parallelism),
		variant.WithTimeout(producerTimeout),
	)
	producer := variant.NewCommandProducer(producerCommand, producerArgs...)

	results, err := runner.Run(ctx, variants, producer)
	if err != nil {
		return fmt.Errorf("running variants: %w", err)
	}
	for _, res := range results {
		sink.RecordVariant(ctx, &telemetry.VariantData{
			Name:     res.Name,
			Duration: res.Duration,
			Failed:   res.Failed(),
		})
	}

	// 4. Evaluate the gate.
	decision := gate.Evaluate(checks, canary, results)
	if !hasCanary {
		decision.Canary = gate.CanaryResult{Status: gate.CanaryOK}
	}
	final := gate.FinalStatus(decision, failOnCanaryWarn)

	// 5. Classify against the stored baseline. A missing baseline means
	// everything is NEW; a corrupt one is fatal.
	store, err := snapshot.NewFileStore(baselineDir)
	if err != nil {
		return err
	}
	current := currentSnapshot(results)

	baseline, err := store.Get(ctx, baselineName)
	switch {
	case errors.Is(err, snapshot.ErrSnapshotNotFound):
		log.Info("no baseline snapshot; all metrics classify as new")
		baseline = snapshot.Snapshot{}
	case err != nil:
		return fmt.Errorf("loading baseline: %w", err)
	}

	tol := snapshot.ToleranceConfig{}
	if doc != nil {
		tol.PerMetric = doc.Tolerances
	}
	classifications := snapshot.Diff(baseline, current, tol)
	summary := snapshot.Summarize(classifications)

	sink.RecordDecision(ctx, decisionData(decision, canary, final))
	sink.RecordClassification(ctx, &telemetry.ClassificationData{
		Counts: map[string]int{
			"UNCHANGED": summary.Unchanged,
			"IMPROVED":  summary.Improved,
			"REGRESSED": summary.Regressed,
			"NEW":       summary.New,
			"REMOVED":   summary.Removed,
		},
	})

	// 6. Persist the run record.
	writer, err := artifact.NewWriter(artifactDir, log.Slog())
	if err != nil {
		return err
	}
	record := buildRecord(runID, final, decision, checks, results, classifications, summary, doc)
	recordPath, err := writer.Write(ctx, record)
	if err != nil {
		return fmt.Errorf("writing run record: %w", err)
	}

	// 7. Promote the baseline only on a passing gate.
	if updateBaseline && final == gate.Pass {
		if err := store.Set(ctx, baselineName, current); err != nil {
			return fmt.Errorf("updating baseline: %w", err)
		}
		log.Info("baseline updated", "jobs", len(current.Jobs))
	}

	printDecision(final, decision, hasCanary, summary, record.PreferredVariant, recordPath)

	if final == gate.Fail {
		return errGateFailed
	}
	return nil
}

// loadChecks reads the checks document, degrading to a nil document when it
// is missing or malformed. The gate must stay runnable with a broken config;
// the resolver fills every gap with documented defaults.
func loadChecks(path string, log *logging.Logger) *threshold.Document {
	doc, err := threshold.Load(path)
	if err != nil {
		log.Warn("checks document unavailable; resolving with defaults",
			"path", path,
			"error", err,
		)
		return nil
	}
	return doc
}

// findCanaryCheck returns the ID of the first canary-kind check entry.
func findCanaryCheck(doc *threshold.Document) (string, bool) {
	if doc == nil {
		return "", false
	}
	for _, entry := range doc.Checks {
		if entry.Kind == "canary" {
			return entry.ID, true
		}
	}
	return "", false
}

// declaredVariants maps the document's variant entries onto runner inputs.
// A document with no variants still runs a single unnamed-override pass.
func declaredVariants(doc *threshold.Document) []variant.Variant {
	if doc == nil || len(doc.Variants) == 0 {
		return []variant.Variant{{Name: baselineName}}
	}
	variants := make([]variant.Variant, 0, len(doc.Variants))
	for _, entry := range doc.Variants {
		variants = append(variants, variant.Variant{
			Name:      entry.Name,
			Overrides: entry.Overrides,
		})
	}
	return variants
}

// currentSnapshot collects the successful variants' bundles into a snapshot
// keyed by variant name.
func currentSnapshot(results []variant.Result) snapshot.Snapshot {
	jobs := make(map[string]eval.Bundle, len(results))
	for _, res := range results {
		if res.Failed() || res.Bundle == nil {
			continue
		}
		jobs[res.Name] = res.Bundle
	}
	return snapshot.New(jobs)
}

// buildRecord assembles the persisted run record from the run's outputs.
func buildRecord(
	runID string,
	final gate.Status,
	decision gate.Decision,
	checks []threshold.ResolvedCheck,
	results []variant.Result,
	classifications []snapshot.Classification,
	summary snapshot.Summary,
	doc *threshold.Document,
) artifact.Record {
	passed := variantVerdicts(decision, checks, results)

	variants := make([]artifact.VariantRecord, 0, len(results))
	for _, res := range results {
		variants = append(variants, artifact.VariantRecord{
			Name:        res.Name,
			Overrides:   res.Overrides,
			Observed:    res.Value,
			Passed:      passed[res.Name],
			OutputPath:  res.OutputPath,
			SummaryPath: res.SummaryPath,
		})
	}

	var preference []string
	fallback := baselineName
	if doc != nil {
		preference = doc.Preference
		if doc.CanaryVariant != "" {
			fallback = doc.CanaryVariant
		}
	}

	return artifact.Record{
		RunID:            runID,
		Status:           final,
		Canary:           decision.Canary.Status,
		RunsDir:          runsDir,
		Variants:         variants,
		Checks:           decision.PerCheck,
		Summary:          summary,
		Classifications:  classifications,
		PreferredVariant: artifact.PreferredVariant(variants, preference, fallback),
	}
}

// variantVerdicts maps each variant name to whether every check scoped to
// it (or scoped to all variants) passed, and the variant itself succeeded.
func variantVerdicts(decision gate.Decision, checks []threshold.ResolvedCheck, results []variant.Result) map[string]bool {
	passed := make(map[string]bool, len(results))
	for _, res := range results {
		passed[res.Name] = !res.Failed()
	}

	// decision.PerCheck is index-aligned with checks.
	for i, check := range checks {
		if i >= len(decision.PerCheck) || decision.PerCheck[i].Passed {
			continue
		}
		if len(check.Variants) == 0 {
			for name := range passed {
				passed[name] = false
			}
			continue
		}
		for _, name := range check.Variants {
			passed[name] = false
		}
	}
	return passed
}

// decisionData flattens a decision for the telemetry sink.
func decisionData(decision gate.Decision, canary threshold.CanaryCheck, final gate.Status) *telemetry.DecisionData {
	checks := make(map[string]bool, len(decision.PerCheck))
	for _, res := range decision.PerCheck {
		checks[res.CheckID] = res.Passed
	}
	return &telemetry.DecisionData{
		Status:        final.String(),
		Canary:        decision.Canary.Status.String(),
		CanaryVariant: canary.Variant,
		Checks:        checks,
	}
}

// newSink builds the telemetry sink, optionally serving a scrape endpoint
// for the run's duration.
func newSink(log *logging.Logger) (telemetry.Sink, error) {
	if metricsListen == "" {
		return telemetry.NoopSink{}, nil
	}

	registry := prometheus.NewRegistry()
	config := telemetry.DefaultPrometheusConfig()
	config.Registry = registry

	sink, err := telemetry.NewPrometheusSink(config)
	if err != nil {
		return nil, fmt.Errorf("creating metrics sink: %w", err)
	}

	server := &http.Server{
		Addr:              metricsListen,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics endpoint stopped", "error", err)
		}
	}()

	return &servingSink{Sink: sink, server: server}, nil
}

// servingSink couples the sink's lifetime to the scrape endpoint's.
type servingSink struct {
	telemetry.Sink
	server *http.Server
}

func (s *servingSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
	return s.Sink.Close()
}

// printDecision writes the human-readable verdict to stdout.
func printDecision(
	final gate.Status,
	decision gate.Decision,
	hasCanary bool,
	summary snapshot.Summary,
	preferred string,
	recordPath string,
) {
	fmt.Println()
	if final == gate.Pass {
		ux.Pass(fmt.Sprintf("Gate: %s", final))
	} else {
		ux.Fail(fmt.Sprintf("Gate: %s", final))
	}

	for _, check := range decision.PerCheck {
		observed := "n/a"
		if check.Observed != nil {
			observed = fmt.Sprintf("%.4f", *check.Observed)
		}
		line := fmt.Sprintf("%-24s observed=%-10s bound=%.4f (%s)",
			check.CheckID, observed, check.Bound, check.Direction)
		if check.Passed {
			ux.Pass(line)
		} else {
			ux.Fail(line)
		}
		if check.Reason != "" {
			ux.Muted("      " + check.Reason)
		}
	}
	if hasCanary {
		line := fmt.Sprintf("Canary: %s", decision.Canary.Status)
		if decision.Canary.Observed != nil {
			line += fmt.Sprintf(" (observed=%.4f threshold=%.4f)",
				*decision.Canary.Observed, decision.Canary.Threshold)
		}
		if decision.Canary.Status == gate.CanaryWarn {
			ux.Warn(line)
		} else {
			ux.Info(line)
		}
	}
	ux.Info(fmt.Sprintf("Classification: %d unchanged, %d improved, %d regressed, %d new, %d removed",
		summary.Unchanged, summary.Improved, summary.Regressed, summary.New, summary.Removed))
	if preferred != "" {
		ux.Info("Preferred variant: " + preferred)
	}
	ux.Muted("Record: " + recordPath)
}
