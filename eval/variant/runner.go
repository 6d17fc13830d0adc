// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package variant runs named configuration permutations against the same
// external evaluation producer and collects one scalar metric per run.
package variant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/AleutianAI/driftgate/eval"
	"github.com/AleutianAI/driftgate/pkg/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "driftgate.eval.variant"

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNoMetric indicates the producer completed but did not emit the
	// expected metric. Treated as a hard failure, never as zero.
	ErrNoMetric = errors.New("producer did not emit expected metric")

	// ErrProducerFailed indicates the producer invocation itself failed.
	ErrProducerFailed = errors.New("producer failed")
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Variant is one named configuration permutation.
//
// Overrides are key/value configuration deltas applied for a single producer
// invocation. They are an explicit, immutable input: concurrent variant runs
// share no mutable state.
type Variant struct {
	// Name identifies the variant ("baseline", "fix_rerank", ...).
	Name string

	// Overrides are the configuration deltas for this variant.
	Overrides map[string]string
}

// Result is the outcome of one variant invocation.
type Result struct {
	// Name is the variant name.
	Name string

	// RunID uniquely identifies this invocation.
	RunID string

	// Overrides echoes the variant's configuration deltas.
	Overrides map[string]string

	// Bundle is the full metric document the producer emitted. Nil when
	// the producer failed.
	Bundle eval.Bundle

	// Value is the scalar at the runner's metric path. Nil when the
	// producer failed or the metric is absent; nil is never read as zero.
	Value *float64

	// OutputPath is the wall-clock-ordered directory holding this
	// variant's detailed output.
	OutputPath string

	// SummaryPath locates the producer's summary document inside
	// OutputPath, the candidate "latest" snapshot.
	SummaryPath string

	// Err carries the explicit failure reason, when any.
	Err error

	// Duration is the producer wall time.
	Duration time.Duration
}

// Failed reports whether this result must fail any check referencing it.
// Err is set whenever the producer failed or the expected metric is absent.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Producer is the external, opaque metric producer.
//
// Implementations invoke a benchmark or model adapter with the variant's
// overrides in effect and return the resulting metric bundle plus the path
// of the summary document they wrote under outputDir. Producers are blocking
// and must honor ctx cancellation as best they can; a timeout surfaces as a
// plain producer failure, never as a partial result.
type Producer interface {
	Produce(ctx context.Context, v Variant, outputDir string) (eval.Bundle, string, error)
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(ctx context.Context, v Variant, outputDir string) (eval.Bundle, string, error)

// Produce implements Producer.
func (f ProducerFunc) Produce(ctx context.Context, v Variant, outputDir string) (eval.Bundle, string, error) {
	return f(ctx, v, outputDir)
}

// -----------------------------------------------------------------------------
// Runner Options
// -----------------------------------------------------------------------------

// Config holds runner settings.
type Config struct {
	// RunsDir is the root directory for per-variant output.
	RunsDir string

	// MetricPath selects the primary scalar each variant reports.
	MetricPath eval.Path

	// Parallelism bounds concurrent variant invocations.
	Parallelism int

	// Timeout caps a single producer invocation.
	Timeout time.Duration
}

// DefaultConfig returns runner defaults.
func DefaultConfig() *Config {
	return &Config{
		RunsDir:     "runs",
		Parallelism: 2,
		Timeout:     30 * time.Minute,
	}
}

// Option configures a Runner.
type Option func(*Config)

// WithRunsDir sets the root output directory.
func WithRunsDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.RunsDir = dir
		}
	}
}

// WithMetricPath sets the primary metric the runner extracts per variant.
func WithMetricPath(p eval.Path) Option {
	return func(c *Config) {
		c.MetricPath = p
	}
}

// WithParallelism bounds concurrent producer invocations. Must be positive;
// non-positive values are ignored.
func WithParallelism(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Parallelism = n
		}
	}
}

// WithTimeout caps a single producer invocation. Must be positive;
// non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// -----------------------------------------------------------------------------
// Runner
// -----------------------------------------------------------------------------

// Runner executes a fixed set of named variants against one producer.
//
// Description:
//
//	Variants within a single Run are independent: they share only the
//	runner's read-only configuration and write to distinct output
//	directories, so they execute concurrently up to Parallelism. Run has
//	join semantics: it returns only when every variant has a Result, never
//	on first completion.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	config *Config
	logger *slog.Logger
}

// NewRunner creates a runner.
//
// Inputs:
//   - logger: Logger for per-variant progress. If nil, uses slog.Default().
//   - opts: Optional configuration.
//
// Outputs:
//   - *Runner: The new runner. Never nil.
func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &Runner{config: config, logger: logger}
}

// Run invokes the producer once per variant and collects every result.
//
// Description:
//
//	A producer failure (error return, timeout, or missing expected metric)
//	does not abort sibling variants; it is recorded on that variant's
//	Result with a nil Value and an explicit Err. The gate evaluator treats
//	nil as an automatic fail for any check referencing the variant.
//	There is no retry and no mid-run cancellation of siblings.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - variants: The named permutations to run.
//   - producer: The external producer. Must not be nil.
//
// Outputs:
//   - []Result: One result per variant, in input order. Always complete.
//   - error: Non-nil only when the run could not start or the context was
//     cancelled before all variants finished.
func (r *Runner) Run(ctx context.Context, variants []Variant, producer Producer) ([]Result, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}
	if producer == nil {
		return nil, errors.New("producer must not be nil")
	}
	// Variant names become run directory components; reject anything that
	// could escape RunsDir before any producer starts.
	for _, v := range variants {
		if err := validation.ValidateName(v.Name); err != nil {
			return nil, fmt.Errorf("variant name: %w", err)
		}
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "variant.Runner.Run",
		trace.WithAttributes(
			attribute.Int("variant.count", len(variants)),
			attribute.Int("variant.parallelism", r.config.Parallelism),
		),
	)
	defer span.End()

	results := make([]Result, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Parallelism)
	for i, v := range variants {
		g.Go(func() error {
			results[i] = r.runOne(gctx, v, producer)
			return nil
		})
	}
	// Goroutines only ever return nil; Wait is a join, not an abort.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run cancelled")
		return results, fmt.Errorf("running variants: %w", err)
	}

	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("variant.failed", failed))
	span.SetStatus(codes.Ok, "variants completed")

	return results, nil
}

// runOne executes a single variant and never returns an error; failures are
// data on the Result.
func (r *Runner) runOne(ctx context.Context, v Variant, producer Producer) Result {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "variant.Runner.runOne",
		trace.WithAttributes(attribute.String("variant.name", v.Name)),
	)
	defer span.End()

	runID := uuid.NewString()
	span.SetAttributes(attribute.String("variant.run_id", runID))

	result := Result{
		Name:      v.Name,
		RunID:     runID,
		Overrides: v.Overrides,
		// Timestamp prefix keeps sibling runs wall-clock ordered on disk.
		OutputPath: filepath.Join(r.config.RunsDir,
			fmt.Sprintf("%s_%s_%s", time.Now().UTC().Format("20060102T150405"), v.Name, runID[:8])),
	}

	r.logger.Info("variant starting",
		slog.String("variant", v.Name),
		slog.String("run_id", runID),
		slog.String("output", result.OutputPath),
	)

	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	start := time.Now()
	bundle, summaryPath, err := producer.Produce(runCtx, v, result.OutputPath)
	result.Duration = time.Since(start)
	result.SummaryPath = summaryPath

	if err != nil {
		result.Err = fmt.Errorf("%w: %v", ErrProducerFailed, err)
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "producer failed")
		r.logger.Error("variant failed",
			slog.String("variant", v.Name),
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		return result
	}

	result.Bundle = bundle

	if r.config.MetricPath != "" {
		value, rerr := r.config.MetricPath.Resolve(bundle)
		if rerr != nil {
			result.Err = fmt.Errorf("%w: %v", ErrNoMetric, rerr)
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, "metric missing")
			r.logger.Error("variant produced no metric",
				slog.String("variant", v.Name),
				slog.String("metric_path", r.config.MetricPath.String()),
				slog.String("error", rerr.Error()),
			)
			return result
		}
		result.Value = &value
	}

	span.SetStatus(codes.Ok, "variant completed")
	r.logger.Info("variant completed",
		slog.String("variant", v.Name),
		slog.String("run_id", runID),
		slog.Duration("duration", result.Duration),
	)

	return result
}
