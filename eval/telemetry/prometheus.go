// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig is returned when the Prometheus configuration is invalid.
	ErrInvalidConfig = errors.New("invalid prometheus configuration")

	// ErrRegistrationFailed is returned when metric registration fails.
	ErrRegistrationFailed = errors.New("metric registration failed")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// PrometheusConfig configures the Prometheus sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type PrometheusConfig struct {
	// Namespace is the metrics namespace (e.g., "driftgate").
	// Required.
	Namespace string

	// Subsystem is the metrics subsystem (e.g., "gate").
	// Required.
	Subsystem string

	// Registry is the Prometheus registry to use.
	// If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// DurationBuckets defines histogram buckets for variant durations
	// (seconds). If nil, uses default buckets.
	DurationBuckets []float64

	// MaxLabelCardinality is the maximum number of unique label values to
	// track. When exceeded, new label values are mapped to "_other".
	// Default: 1000
	MaxLabelCardinality int
}

// DefaultPrometheusConfig returns a configuration with sensible defaults.
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Namespace: "driftgate",
		Subsystem: "gate",
		DurationBuckets: []float64{
			0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600,
		},
		MaxLabelCardinality: 1000,
	}
}

// Validate checks that the configuration is valid.
func (c *PrometheusConfig) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.Subsystem == "" {
		return errors.New("subsystem is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Prometheus Sink
// -----------------------------------------------------------------------------

// PrometheusSink exports gate telemetry as Prometheus metrics.
//
// Description:
//
//	PrometheusSink collects gate decisions, variant executions, and
//	snapshot classifications and exposes them as Prometheus metrics.
//	Metrics are registered on creation and deregistered on Close().
//
// Thread Safety: Safe for concurrent use.
//
// Example:
//
//	sink, err := telemetry.NewPrometheusSink(telemetry.DefaultPrometheusConfig())
//	if err != nil {
//	    return fmt.Errorf("create prometheus sink: %w", err)
//	}
//	defer sink.Close()
//
//	sink.RecordDecision(ctx, data)
type PrometheusSink struct {
	config   *PrometheusConfig
	registry prometheus.Registerer

	// Gate metrics
	gateRuns       *prometheus.CounterVec
	canaryWarnings *prometheus.CounterVec
	checkResults   *prometheus.CounterVec

	// Variant metrics
	variantDuration *prometheus.HistogramVec
	variantFailures *prometheus.CounterVec

	// Classification metrics
	classificationLast *prometheus.GaugeVec

	mu     sync.RWMutex
	closed bool

	// Track registered collectors for cleanup
	collectors []prometheus.Collector

	// Label cardinality protection
	labelMu        sync.RWMutex
	seenLabels     map[string]map[string]struct{}
	maxCardinality int
}

// NewPrometheusSink creates a new Prometheus telemetry sink.
//
// Inputs:
//   - config: Prometheus configuration. Must not be nil.
//
// Outputs:
//   - *PrometheusSink: The created sink. Never nil on success.
//   - error: Non-nil if configuration is invalid or registration fails.
//
// Thread Safety: The returned sink is safe for concurrent use.
func NewPrometheusSink(config *PrometheusConfig) (*PrometheusSink, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	// Copy to avoid mutating input
	cfg := *config
	if cfg.DurationBuckets == nil {
		cfg.DurationBuckets = DefaultPrometheusConfig().DurationBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	maxCard := cfg.MaxLabelCardinality
	if maxCard <= 0 {
		maxCard = 1000
	}

	sink := &PrometheusSink{
		config:         &cfg,
		registry:       registry,
		seenLabels:     make(map[string]map[string]struct{}),
		maxCardinality: maxCard,
	}

	sink.gateRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "runs_total",
			Help:      "Total gate runs by final status",
		},
		[]string{"status"},
	)

	sink.canaryWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "canary_warnings_total",
			Help:      "Total canary warnings by observed variant",
		},
		[]string{"variant"},
	)

	sink.checkResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "check_results_total",
			Help:      "Total check evaluations by check and outcome",
		},
		[]string{"check", "outcome"},
	)

	sink.variantDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "variant_duration_seconds",
			Help:      "Variant producer duration in seconds",
			Buckets:   cfg.DurationBuckets,
		},
		[]string{"variant"},
	)

	sink.variantFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "variant_failures_total",
			Help:      "Total variant producer failures",
		},
		[]string{"variant"},
	)

	sink.classificationLast = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "classification_last_run",
			Help:      "Per-category classification counts from the most recent run",
		},
		[]string{"category"},
	)

	sink.collectors = []prometheus.Collector{
		sink.gateRuns,
		sink.canaryWarnings,
		sink.checkResults,
		sink.variantDuration,
		sink.variantFailures,
		sink.classificationLast,
	}

	for _, c := range sink.collectors {
		if err := registry.Register(c); err != nil {
			// If already registered, try to continue
			var alreadyErr prometheus.AlreadyRegisteredError
			if !errors.As(err, &alreadyErr) {
				return nil, errors.Join(ErrRegistrationFailed, err)
			}
		}
	}

	return sink, nil
}

// RecordDecision records a gate decision.
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) RecordDecision(ctx context.Context, data *DecisionData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSinkClosed
	}
	s.mu.RUnlock()

	status := data.Status
	if status == "" {
		status = "unknown"
	}
	s.gateRuns.WithLabelValues(status).Inc()

	if data.Canary == "WARN" {
		variant := data.CanaryVariant
		if variant == "" {
			variant = "unknown"
		}
		variant = s.sanitizeLabel("variant", variant)
		s.canaryWarnings.WithLabelValues(variant).Inc()
	}

	for checkID, passed := range data.Checks {
		outcome := "fail"
		if passed {
			outcome = "pass"
		}
		check := s.sanitizeLabel("check", checkID)
		s.checkResults.WithLabelValues(check, outcome).Inc()
	}

	return nil
}

// RecordVariant records a variant execution.
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) RecordVariant(ctx context.Context, data *VariantData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSinkClosed
	}
	s.mu.RUnlock()

	name := data.Name
	if name == "" {
		name = "unknown"
	}
	name = s.sanitizeLabel("variant", name)

	s.variantDuration.WithLabelValues(name).Observe(data.Duration.Seconds())
	if data.Failed {
		s.variantFailures.WithLabelValues(name).Inc()
	}

	return nil
}

// RecordClassification records a snapshot classification summary.
//
// Description:
//
//	Sets the per-category gauges to the most recent run's counts.
//	Categories absent from the data keep their previous value, so
//	callers should report every category each run.
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) RecordClassification(ctx context.Context, data *ClassificationData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSinkClosed
	}
	s.mu.RUnlock()

	for category, count := range data.Counts {
		category = s.sanitizeLabel("category", category)
		s.classificationLast.WithLabelValues(category).Set(float64(count))
	}

	return nil
}

// Flush is a no-op for the Prometheus sink.
//
// Description:
//
//	Prometheus metrics are available immediately via scraping.
//	This method exists for interface compliance.
func (s *PrometheusSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}
	return nil
}

// Close unregisters all metrics and releases resources.
//
// Thread Safety: Safe for concurrent use. Idempotent.
func (s *PrometheusSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// DefaultRegisterer does not support Unregister; only concrete
	// registries get cleaned up.
	if registry, ok := s.registry.(*prometheus.Registry); ok {
		for _, c := range s.collectors {
			registry.Unregister(c)
		}
	}

	return nil
}

// sanitizeLabel protects against label cardinality explosion.
//
// Description:
//
//	Tracks unique label values per label name and replaces values
//	beyond MaxLabelCardinality with "_other".
//
// Thread Safety: Safe for concurrent use.
func (s *PrometheusSink) sanitizeLabel(labelName, labelValue string) string {
	s.labelMu.RLock()
	seen := s.seenLabels[labelName]
	if seen != nil {
		if _, exists := seen[labelValue]; exists {
			s.labelMu.RUnlock()
			return labelValue
		}
		if len(seen) >= s.maxCardinality {
			s.labelMu.RUnlock()
			return "_other"
		}
	}
	s.labelMu.RUnlock()

	s.labelMu.Lock()
	defer s.labelMu.Unlock()

	// Double-check after acquiring write lock
	if s.seenLabels[labelName] == nil {
		s.seenLabels[labelName] = make(map[string]struct{})
	}
	if _, exists := s.seenLabels[labelName][labelValue]; exists {
		return labelValue
	}
	if len(s.seenLabels[labelName]) >= s.maxCardinality {
		return "_other"
	}

	s.seenLabels[labelName][labelValue] = struct{}{}
	return labelValue
}

// Verify interface compliance at compile time.
var _ Sink = (*PrometheusSink)(nil)
