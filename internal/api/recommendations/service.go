package recommendations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/go-ren-assistant/internal/api/aicontext"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/tuning"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const signalLimit = 100

type Service interface {
	GetRecommendations(ctx context.Context, userID string, limit int) ([]types.Listing, error)
	RankCandidates(ctx context.Context, userID string, limit int) ([]types.RecommendationCandidate, error)
}

var _ Service = (*ServiceImpl)(nil)

type ServiceImpl struct {
	logger         *slog.Logger
	activity       aicontext.Repository
	listings       aicontext.ListingRepository
	tuning         *tuning.Store
	defaultLimit   int
	candidateLimit int
	now            func() time.Time
}

func NewService(activity aicontext.Repository, listings aicontext.ListingRepository, store *tuning.Store, defaultLimit, candidateLimit int, logger *slog.Logger) *ServiceImpl {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if candidateLimit <= 0 {
		candidateLimit = 200
	}
	return &ServiceImpl{
		logger:         logger,
		activity:       activity,
		listings:       listings,
		tuning:         store,
		defaultLimit:   defaultLimit,
		candidateLimit: candidateLimit,
		now:            time.Now,
	}
}

// GetRecommendations returns the top listings for userID. A user without
// activity gets an empty slice, not an error.
func (s *ServiceImpl) GetRecommendations(ctx context.Context, userID string, limit int) ([]types.Listing, error) {
	ranked, err := s.RankCandidates(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.Listing, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, c.Listing)
	}
	return out, nil
}

// RankCandidates is GetRecommendations with scores attached.
func (s *ServiceImpl) RankCandidates(ctx context.Context, userID string, limit int) ([]types.RecommendationCandidate, error) {
	ctx, span := otel.Tracer("RecommendationService").Start(ctx, "RankCandidates")
	defer span.End()
	l := s.logger.With(slog.String("method", "RankCandidates"), slog.String("userID", userID))

	if limit <= 0 {
		limit = s.defaultLimit
	}
	span.SetAttributes(attribute.Int("limit", limit))

	signals, err := s.fetchSignals(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch recommendation signals", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "signal fetch failed")
		return nil, fmt.Errorf("failed to fetch recommendation signals: %w", err)
	}
	if signals.Empty() {
		l.DebugContext(ctx, "No activity signals, nothing to recommend")
		return []types.RecommendationCandidate{}, nil
	}

	candidates, err := s.fetchCandidates(ctx, signals)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch candidate listings", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate fetch failed")
		return nil, fmt.Errorf("failed to fetch candidate listings: %w", err)
	}

	// Own listings are never recommended back.
	filtered := make([]types.Listing, 0, len(candidates))
	for _, c := range candidates {
		if c.OwnerID != userID {
			filtered = append(filtered, c)
		}
	}

	weights := s.tuning.Load().Recommendation
	ranked := Score(signals, filtered, weights, s.now())
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	span.SetAttributes(attribute.Int("candidates", len(filtered)), attribute.Int("results", len(ranked)))
	l.InfoContext(ctx, "Recommendations ranked", slog.Int("candidates", len(filtered)), slog.Int("results", len(ranked)))
	return ranked, nil
}

func (s *ServiceImpl) fetchSignals(ctx context.Context, userID string) (Signals, error) {
	var sig Signals
	if userID == "" {
		return sig, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sig.Bookings, err = s.activity.FindUserBookings(gctx, userID, signalLimit)
		return err
	})
	g.Go(func() error {
		var err error
		sig.Wishlist, err = s.activity.FindUserWishlist(gctx, userID, signalLimit)
		return err
	})
	g.Go(func() error {
		var err error
		sig.Reviews, err = s.activity.FindUserReviews(gctx, userID, signalLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Signals{}, err
	}
	return sig, nil
}

// fetchCandidates is wishlist listings plus listings in every touched
// category, bounded by candidateLimit.
func (s *ServiceImpl) fetchCandidates(ctx context.Context, sig Signals) ([]types.Listing, error) {
	ids := make([]string, 0, len(sig.Wishlist))
	for _, w := range sig.Wishlist {
		ids = append(ids, w.ListingID)
	}

	var byID, byCategory []types.Listing
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byID, err = s.listings.FindListingsByIDs(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		byCategory, err = s.listings.FindListingsByCategories(gctx, sig.Categories(), s.candidateLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]types.Listing, 0, len(byID)+len(byCategory))
	out = append(out, byID...)
	out = append(out, byCategory...)
	if len(out) > s.candidateLimit {
		out = out[:s.candidateLimit]
	}
	return out, nil
}
