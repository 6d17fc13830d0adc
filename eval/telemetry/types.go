// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exports gate run outcomes as Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilData is returned when nil telemetry data is passed.
	ErrNilData = errors.New("telemetry data must not be nil")

	// ErrSinkClosed is returned when recording on a closed sink.
	ErrSinkClosed = errors.New("telemetry sink is closed")
)

// -----------------------------------------------------------------------------
// Telemetry Data
// -----------------------------------------------------------------------------

// DecisionData captures one gate decision for export.
type DecisionData struct {
	// Status is the final gate verdict ("PASS" or "FAIL").
	Status string

	// Canary is the canary verdict ("OK" or "WARN").
	Canary string

	// CanaryVariant names the variant the canary observed.
	CanaryVariant string

	// Checks maps check ID to whether that check passed.
	Checks map[string]bool
}

// VariantData captures one variant execution for export.
type VariantData struct {
	// Name is the variant name.
	Name string

	// Duration is the wall time the variant's producer took.
	Duration time.Duration

	// Failed reports whether the variant's producer errored.
	Failed bool
}

// ClassificationData captures one snapshot diff for export.
type ClassificationData struct {
	// Counts maps classification category name to count.
	Counts map[string]int
}

// -----------------------------------------------------------------------------
// Sink Interface
// -----------------------------------------------------------------------------

// Sink receives gate telemetry.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Sink interface {
	// RecordDecision records a gate decision.
	RecordDecision(ctx context.Context, data *DecisionData) error

	// RecordVariant records a variant execution.
	RecordVariant(ctx context.Context, data *VariantData) error

	// RecordClassification records a snapshot classification summary.
	RecordClassification(ctx context.Context, data *ClassificationData) error

	// Flush pushes any buffered telemetry.
	Flush(ctx context.Context) error

	// Close releases sink resources. Recording after Close fails with
	// ErrSinkClosed.
	Close() error
}

// -----------------------------------------------------------------------------
// Noop Sink
// -----------------------------------------------------------------------------

// NoopSink discards all telemetry. Useful when metrics export is disabled.
type NoopSink struct{}

// RecordDecision implements Sink.
func (NoopSink) RecordDecision(context.Context, *DecisionData) error { return nil }

// RecordVariant implements Sink.
func (NoopSink) RecordVariant(context.Context, *VariantData) error { return nil }

// RecordClassification implements Sink.
func (NoopSink) RecordClassification(context.Context, *ClassificationData) error { return nil }

// Flush implements Sink.
func (NoopSink) Flush(context.Context) error { return nil }

// Close implements Sink.
func (NoopSink) Close() error { return nil }

var _ Sink = NoopSink{}
