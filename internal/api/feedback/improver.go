package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-ren-assistant/app/observability/metrics"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/tuning"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const (
	minTemplateWeight = 0.25
	maxTemplateWeight = 2.0
	minScorerWeight   = 0.0
	maxScorerWeight   = 10.0
	neutralRating     = 3.0
)

type ImproverOptions struct {
	Window     time.Duration
	MinSamples int
	MaxRecords int
	Step       float64
}

// Improver turns accumulated feedback into a new tuning snapshot.
type Improver struct {
	logger *slog.Logger
	repo   Repository
	store  *tuning.Store
	opts   ImproverOptions
	now    func() time.Time

	// mu serializes runs so two updates never race on the version number.
	mu     sync.Mutex
	latest *types.BehaviorAnalysis
}

func NewImprover(repo Repository, store *tuning.Store, opts ImproverOptions, logger *slog.Logger) *Improver {
	if opts.Window <= 0 {
		opts.Window = 30 * 24 * time.Hour
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = 5
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = 5000
	}
	if opts.Step <= 0 {
		opts.Step = 0.25
	}
	return &Improver{logger: logger, repo: repo, store: store, opts: opts, now: time.Now}
}

// Restore loads the latest persisted snapshot into the tuning store. A
// missing snapshot leaves the configured defaults in place.
func (im *Improver) Restore(ctx context.Context) error {
	l := im.logger.With(slog.String("method", "Restore"))
	snapshot, err := im.repo.LatestSnapshot(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load behavior snapshot", slog.Any("error", err))
		return fmt.Errorf("failed to restore tuning: %w", err)
	}
	if snapshot == nil {
		l.InfoContext(ctx, "No behavior snapshot found, using configured weights")
		return nil
	}

	im.mu.Lock()
	defer im.mu.Unlock()
	im.store.Publish(snapshot.Tuning)
	im.latest = snapshot
	l.InfoContext(ctx, "Tuning restored", slog.Int64("version", snapshot.Tuning.Version))
	return nil
}

// UpdateBehavior recomputes template and scorer weights from feedback in the
// configured window and publishes them as the next tuning version.
func (im *Improver) UpdateBehavior(ctx context.Context) (types.BehaviorAnalysis, error) {
	ctx, span := otel.Tracer("FeedbackImprover").Start(ctx, "UpdateBehavior")
	defer span.End()
	l := im.logger.With(slog.String("method", "UpdateBehavior"))

	im.mu.Lock()
	defer im.mu.Unlock()

	now := im.now().UTC()
	records, err := im.repo.ListSince(ctx, now.Add(-im.opts.Window), im.opts.MaxRecords)
	if err != nil {
		l.ErrorContext(ctx, "Failed to read feedback window", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "feedback read failed")
		metrics.Get().ImprovementRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return types.BehaviorAnalysis{}, fmt.Errorf("failed to read feedback: %w", err)
	}

	current := im.store.Load()
	next := current.Clone()
	next.Version = current.Version + 1
	next.UpdatedAt = now

	adjustments := im.adjustTemplates(records, &next)
	adjustments = append(adjustments, im.adjustScorer(records, &next)...)

	analysis := types.BehaviorAnalysis{
		AnalyzedAt:  now,
		SampleSize:  len(records),
		Stats:       ComputeStats(records),
		Adjustments: adjustments,
		Tuning:      next.Clone(),
	}

	im.store.Publish(next)
	im.latest = &analysis

	if err := im.repo.SaveSnapshot(ctx, analysis); err != nil {
		// The new weights are live; only the persisted copy is missing.
		l.ErrorContext(ctx, "Failed to persist behavior snapshot", slog.Any("error", err))
		span.RecordError(err)
	}

	metrics.Get().ImprovementRunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "published")))
	span.SetAttributes(
		attribute.Int64("tuning.version", next.Version),
		attribute.Int("samples", len(records)),
		attribute.Int("adjustments", len(adjustments)),
	)
	l.InfoContext(ctx, "Behavior updated",
		slog.Int64("version", next.Version),
		slog.Int("samples", len(records)),
		slog.Int("adjustments", len(adjustments)))
	return analysis, nil
}

func (im *Improver) adjustTemplates(records []types.FeedbackRecord, next *types.Tuning) []types.Adjustment {
	sum := map[string]int{}
	count := map[string]int{}
	for _, r := range records {
		if r.TemplateID == "" {
			continue
		}
		sum[r.TemplateID] += r.Rating
		count[r.TemplateID]++
	}

	ids := make([]string, 0, len(count))
	for id := range count {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []types.Adjustment
	for _, id := range ids {
		n := count[id]
		if n < im.opts.MinSamples {
			continue
		}
		mean := float64(sum[id]) / float64(n)
		weight := clamp(mean/neutralRating, minTemplateWeight, maxTemplateWeight)
		old := next.TemplateWeight(id)
		if weight == old {
			continue
		}
		next.TemplateWeights[id] = weight
		out = append(out, types.Adjustment{
			Parameter: "template." + id,
			OldValue:  old,
			NewValue:  weight,
			Reason:    fmt.Sprintf("mean rating %.2f over %d samples", mean, n),
		})
	}
	return out
}

func (im *Improver) adjustScorer(records []types.FeedbackRecord, next *types.Tuning) []types.Adjustment {
	total, n := 0, 0
	for _, r := range records {
		if r.Source == types.FeedbackSourceRecommendation {
			total += r.Rating
			n++
		}
	}
	if n < im.opts.MinSamples {
		return nil
	}
	mean := float64(total) / float64(n)
	reason := fmt.Sprintf("recommendation mean rating %.2f over %d samples", mean, n)

	var out []types.Adjustment
	shift := func(name string, field *float64, delta float64) {
		old := *field
		updated := clamp(old+delta, minScorerWeight, maxScorerWeight)
		if updated == old {
			return
		}
		*field = updated
		out = append(out, types.Adjustment{Parameter: "recommendation." + name, OldValue: old, NewValue: updated, Reason: reason})
	}

	w := &next.Recommendation
	switch {
	case mean < neutralRating:
		shift("category_booking", &w.CategoryBooking, -im.opts.Step)
		shift("rating", &w.Rating, im.opts.Step)
	case mean >= 4:
		shift("category_booking", &w.CategoryBooking, im.opts.Step)
	}
	return out
}

// GetImprovementReport returns the latest run, the live tuning and the
// feedback evidence it is based on.
func (im *Improver) GetImprovementReport(ctx context.Context) (types.ImprovementReport, error) {
	ctx, span := otel.Tracer("FeedbackImprover").Start(ctx, "GetImprovementReport")
	defer span.End()

	records, err := im.repo.ListSince(ctx, im.now().Add(-im.opts.Window), im.opts.MaxRecords)
	if err != nil {
		span.RecordError(err)
		return types.ImprovementReport{}, fmt.Errorf("failed to read feedback: %w", err)
	}

	im.mu.Lock()
	latest := im.latest
	im.mu.Unlock()
	if latest == nil {
		if latest, err = im.repo.LatestSnapshot(ctx); err != nil {
			im.logger.WarnContext(ctx, "Failed to load latest snapshot for report", slog.Any("error", err))
			latest = nil
		}
	}
	if latest != nil {
		cp := *latest
		cp.Tuning = latest.Tuning.Clone()
		cp.Adjustments = append([]types.Adjustment(nil), latest.Adjustments...)
		latest = &cp
	}

	return types.ImprovementReport{
		GeneratedAt: im.now().UTC(),
		Latest:      latest,
		Current:     im.store.Load(),
		Evidence:    ComputeStats(records),
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
