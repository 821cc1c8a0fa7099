package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "codescope"

// Metrics holds all CodeScope metric instruments.
type Metrics struct {
	VersionsRecorded metric.Int64Counter
	VersionsDeduped  metric.Int64Counter
	ReviewsCreated   metric.Int64Counter
	ReviewsCompleted metric.Int64Counter
	ReviewsFailed    metric.Int64Counter
	ReviewDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.VersionsRecorded, err = meter.Int64Counter("codescope.versions.recorded",
		metric.WithDescription("Number of new file versions recorded"))
	if err != nil {
		return nil, err
	}

	m.VersionsDeduped, err = meter.Int64Counter("codescope.versions.deduped",
		metric.WithDescription("Number of uploads deduplicated against the latest version"))
	if err != nil {
		return nil, err
	}

	m.ReviewsCreated, err = meter.Int64Counter("codescope.reviews.created",
		metric.WithDescription("Number of review tasks created"))
	if err != nil {
		return nil, err
	}

	m.ReviewsCompleted, err = meter.Int64Counter("codescope.reviews.completed",
		metric.WithDescription("Number of review tasks completed"))
	if err != nil {
		return nil, err
	}

	m.ReviewsFailed, err = meter.Int64Counter("codescope.reviews.failed",
		metric.WithDescription("Number of review tasks failed"))
	if err != nil {
		return nil, err
	}

	m.ReviewDuration, err = meter.Float64Histogram("codescope.review.duration_seconds",
		metric.WithDescription("Worker-reported review duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
