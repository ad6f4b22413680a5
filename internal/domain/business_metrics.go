package domain

import (
	"context"
	"time"
)

// BusinessMetric is an outcome event kept for later analysis. It never
// carries the charge payload or credentials.
type BusinessMetric struct {
	Event      string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventChargeCreated records a charge accepted by the provider.
	BusinessMetricEventChargeCreated = "charge_created"
	// BusinessMetricEventChargeRejected records a charge the provider refused.
	BusinessMetricEventChargeRejected = "charge_rejected"
	// BusinessMetricEventDiagnosticsRun records a credential diagnostics run.
	BusinessMetricEventDiagnosticsRun = "diagnostics_run"
)

// BusinessMetricRepo stores business events.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}

// NopBusinessMetrics discards every event.
type NopBusinessMetrics struct{}

func (NopBusinessMetrics) RecordBusinessMetric(context.Context, BusinessMetric) error { return nil }
