package metrics

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the assistant's metric instruments.
type AppMetrics struct {
	TierAttemptsTotal      metric.Int64Counter
	TierFailuresTotal      metric.Int64Counter
	TierDurationSeconds    metric.Float64Histogram
	ResponsesTotal         metric.Int64Counter
	FeedbackTotal          metric.Int64Counter
	FeedbackRating         metric.Int64Histogram
	RecommendationsServed  metric.Int64Counter
	ImprovementRunsTotal   metric.Int64Counter
	NotificationsSentTotal metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics creates the instruments once from the global MeterProvider.
// Call it after the provider is installed so the Prometheus exporter sees them.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("RenAssistant")
		m := &AppMetrics{}
		var err error

		m.TierAttemptsTotal, err = meter.Int64Counter(
			"ren_tier_attempts_total",
			metric.WithDescription("Response tier attempts"),
			metric.WithUnit("{attempt}"),
		)
		mustCreate("ren_tier_attempts_total", err)

		m.TierFailuresTotal, err = meter.Int64Counter(
			"ren_tier_failures_total",
			metric.WithDescription("Response tier failures by error class"),
			metric.WithUnit("{failure}"),
		)
		mustCreate("ren_tier_failures_total", err)

		m.TierDurationSeconds, err = meter.Float64Histogram(
			"ren_tier_duration_seconds",
			metric.WithDescription("Duration of response tier calls in seconds"),
			metric.WithUnit("s"),
		)
		mustCreate("ren_tier_duration_seconds", err)

		m.ResponsesTotal, err = meter.Int64Counter(
			"ren_responses_total",
			metric.WithDescription("Responses returned, by serving tier and intent"),
			metric.WithUnit("{response}"),
		)
		mustCreate("ren_responses_total", err)

		m.FeedbackTotal, err = meter.Int64Counter(
			"ren_feedback_total",
			metric.WithDescription("Feedback records accepted"),
			metric.WithUnit("{record}"),
		)
		mustCreate("ren_feedback_total", err)

		m.FeedbackRating, err = meter.Int64Histogram(
			"ren_feedback_rating",
			metric.WithDescription("Distribution of feedback ratings"),
			metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5),
		)
		mustCreate("ren_feedback_rating", err)

		m.RecommendationsServed, err = meter.Int64Counter(
			"ren_recommendations_served_total",
			metric.WithDescription("Listings returned by the recommendation scorer"),
			metric.WithUnit("{listing}"),
		)
		mustCreate("ren_recommendations_served_total", err)

		m.ImprovementRunsTotal, err = meter.Int64Counter(
			"ren_improvement_runs_total",
			metric.WithDescription("Self-improvement runs by outcome"),
			metric.WithUnit("{run}"),
		)
		mustCreate("ren_improvement_runs_total", err)

		m.NotificationsSentTotal, err = meter.Int64Counter(
			"ren_notifications_total",
			metric.WithDescription("Proactive notifications emitted, by kind"),
			metric.WithUnit("{notification}"),
		)
		mustCreate("ren_notifications_total", err)

		appMetrics = m
	})
}

func mustCreate(name string, err error) {
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
}

// Get returns the instruments, creating them from the current global
// provider on first use.
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}

// RecordTier records one tier attempt. class is empty on success.
func (m *AppMetrics) RecordTier(ctx context.Context, tier string, seconds float64, class string) {
	attrs := metric.WithAttributes(attribute.String("tier", tier))
	m.TierAttemptsTotal.Add(ctx, 1, attrs)
	m.TierDurationSeconds.Record(ctx, seconds, attrs)
	if class != "" {
		m.TierFailuresTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("class", class),
		))
	}
}
