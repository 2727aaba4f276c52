package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-ren-assistant/app/observability/metrics"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const (
	MinRating = 1
	MaxRating = 5
)

type Service interface {
	LogFeedback(ctx context.Context, in types.FeedbackInput) (types.FeedbackRecord, error)
	GetFeedbackStats(ctx context.Context) (types.FeedbackStats, error)
	GetUserFeedback(ctx context.Context, userID string, limit int) ([]types.FeedbackRecord, error)
}

var _ Service = (*ServiceImpl)(nil)

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{logger: logger, repo: repo, now: time.Now}
}

// Validate checks a feedback submission. Errors wrap types.ErrValidation.
func Validate(in types.FeedbackInput) error {
	if strings.TrimSpace(in.MessageID) == "" {
		return fmt.Errorf("%w: message_id is required", types.ErrValidation)
	}
	if in.Rating < MinRating || in.Rating > MaxRating {
		return fmt.Errorf("%w: rating must be between %d and %d, got %d", types.ErrValidation, MinRating, MaxRating, in.Rating)
	}
	switch in.Source {
	case "", types.FeedbackSourceChat, types.FeedbackSourceRecommendation:
	default:
		return fmt.Errorf("%w: unknown source %q", types.ErrValidation, in.Source)
	}
	return nil
}

func (s *ServiceImpl) LogFeedback(ctx context.Context, in types.FeedbackInput) (types.FeedbackRecord, error) {
	ctx, span := otel.Tracer("FeedbackService").Start(ctx, "LogFeedback")
	defer span.End()
	l := s.logger.With(slog.String("method", "LogFeedback"), slog.String("messageID", in.MessageID))

	if err := Validate(in); err != nil {
		l.WarnContext(ctx, "Rejected feedback", slog.Any("error", err))
		span.SetStatus(codes.Error, "validation failed")
		return types.FeedbackRecord{}, err
	}

	source := in.Source
	if source == "" {
		source = types.FeedbackSourceChat
	}
	rec := types.FeedbackRecord{
		ID:         uuid.NewString(),
		MessageID:  strings.TrimSpace(in.MessageID),
		UserID:     in.UserID,
		Rating:     in.Rating,
		Comment:    strings.TrimSpace(in.Comment),
		Intent:     in.Intent,
		TemplateID: in.TemplateID,
		Tier:       in.Tier,
		Source:     source,
		Timestamp:  s.now().UTC(),
	}

	if err := s.repo.Save(ctx, rec); err != nil {
		l.ErrorContext(ctx, "Failed to save feedback", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return types.FeedbackRecord{}, fmt.Errorf("failed to save feedback: %w", err)
	}

	attrs := metric.WithAttributes(attribute.String("source", string(source)))
	metrics.Get().FeedbackTotal.Add(ctx, 1, attrs)
	metrics.Get().FeedbackRating.Record(ctx, int64(rec.Rating), attrs)

	span.SetAttributes(attribute.String("feedback.id", rec.ID), attribute.Int("rating", rec.Rating))
	l.InfoContext(ctx, "Feedback recorded", slog.String("feedbackID", rec.ID), slog.Int("rating", rec.Rating))
	return rec, nil
}

func (s *ServiceImpl) GetFeedbackStats(ctx context.Context) (types.FeedbackStats, error) {
	ctx, span := otel.Tracer("FeedbackService").Start(ctx, "GetFeedbackStats")
	defer span.End()

	// Aggregated in the store so every record counts, not a recent page.
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to aggregate feedback", slog.Any("error", err))
		span.RecordError(err)
		return types.FeedbackStats{}, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	span.SetAttributes(attribute.Int("feedback.count", stats.Count))
	return stats, nil
}

func (s *ServiceImpl) GetUserFeedback(ctx context.Context, userID string, limit int) ([]types.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list user feedback: %w", err)
	}
	return records, nil
}

// ratingBucket is one (rating, intent) group with its record count.
type ratingBucket struct {
	Rating int
	Intent types.Intent
	Count  int
}

// ComputeStats summarizes records. The histogram always has keys 1 to 5.
func ComputeStats(records []types.FeedbackRecord) types.FeedbackStats {
	buckets := make([]ratingBucket, 0, len(records))
	for _, rec := range records {
		buckets = append(buckets, ratingBucket{Rating: rec.Rating, Intent: rec.Intent, Count: 1})
	}
	return statsFromBuckets(buckets)
}

func statsFromBuckets(buckets []ratingBucket) types.FeedbackStats {
	stats := types.FeedbackStats{
		Histogram: make(map[int]int, MaxRating),
		ByIntent:  map[types.Intent]float64{},
	}
	for r := MinRating; r <= MaxRating; r++ {
		stats.Histogram[r] = 0
	}

	total := 0
	intentSum := map[types.Intent]int{}
	intentCount := map[types.Intent]int{}
	for _, b := range buckets {
		stats.Histogram[b.Rating] += b.Count
		stats.Count += b.Count
		total += b.Rating * b.Count
		if b.Intent != "" {
			intentSum[b.Intent] += b.Rating * b.Count
			intentCount[b.Intent] += b.Count
		}
	}
	if stats.Count == 0 {
		return stats
	}
	stats.MeanRating = float64(total) / float64(stats.Count)
	for in, sum := range intentSum {
		stats.ByIntent[in] = float64(sum) / float64(intentCount[in])
	}
	return stats
}
