package monitoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-ren-assistant/internal/api/aicontext"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/feedback"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/location"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/providers"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type MockActivityRepository struct {
	mock.Mock
}

func (m *MockActivityRepository) FindUserPreferences(ctx context.Context, userID string) (*aicontext.StoredPreferences, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aicontext.StoredPreferences), args.Error(1)
}

func (m *MockActivityRepository) FindUserBookings(ctx context.Context, userID string, limit int) ([]types.Booking, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Booking), args.Error(1)
}

func (m *MockActivityRepository) FindUserWishlist(ctx context.Context, userID string, limit int) ([]types.WishlistItem, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.WishlistItem), args.Error(1)
}

func (m *MockActivityRepository) FindUserReviews(ctx context.Context, userID string, limit int) ([]types.Review, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Review), args.Error(1)
}

func (m *MockActivityRepository) CountUserMessages(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type MockListingRepository struct {
	mock.Mock
}

func (m *MockListingRepository) FindListingsByCategories(ctx context.Context, categories []string, limit int) ([]types.Listing, error) {
	args := m.Called(ctx, categories, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Listing), args.Error(1)
}

func (m *MockListingRepository) FindListingsByIDs(ctx context.Context, ids []string) ([]types.Listing, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Listing), args.Error(1)
}

func (m *MockListingRepository) FindRecentListings(ctx context.Context, categories []string, since time.Time, limit int) ([]types.Listing, error) {
	args := m.Called(ctx, categories, since, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Listing), args.Error(1)
}

type MockRecommender struct {
	mock.Mock
}

func (m *MockRecommender) GetRecommendations(ctx context.Context, userID string, limit int) ([]types.Listing, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Listing), args.Error(1)
}

func (m *MockRecommender) RankCandidates(ctx context.Context, userID string, limit int) ([]types.RecommendationCandidate, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.RecommendationCandidate), args.Error(1)
}

type monitoringFixture struct {
	service     *ServiceImpl
	tiers       *TierStats
	feedback    *feedback.ServiceImpl
	activity    *MockActivityRepository
	listings    *MockListingRepository
	recommender *MockRecommender
}

func setupMonitoringTest(t *testing.T, depChecks ...DependencyCheck) monitoringFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	graph, err := location.LoadGraph("")
	require.NoError(t, err)

	f := monitoringFixture{
		tiers:       NewTierStats(),
		feedback:    feedback.NewService(feedback.NewMemoryRepository(), logger),
		activity:    new(MockActivityRepository),
		listings:    new(MockListingRepository),
		recommender: new(MockRecommender),
	}
	f.tiers.Register(types.TierRemote, true)
	f.tiers.Register(types.TierLocal, true)
	f.tiers.Register(types.TierRuleBased, true)
	f.service = NewService(f.tiers, graph, f.feedback, f.activity, f.listings, f.recommender,
		Options{NewListingWindow: 72 * time.Hour, DedupeTTL: time.Hour, MinScore: 4}, logger, depChecks...)
	f.service.now = func() time.Time { return now }
	return f
}

func rate(t *testing.T, f monitoringFixture, userID string, ratings ...int) {
	t.Helper()
	for i, r := range ratings {
		_, err := f.feedback.LogFeedback(context.Background(), types.FeedbackInput{MessageID: fmt.Sprintf("m%d", i), UserID: userID, Rating: r})
		require.NoError(t, err)
	}
}

func TestTierStats(t *testing.T) {
	s := NewTierStats()
	s.Register(types.TierRemote, true)
	s.ObserveTier(types.TierRemote, 100*time.Millisecond, nil)
	s.ObserveTier(types.TierRemote, 300*time.Millisecond, fmt.Errorf("%w: boom", providers.ErrProviderUnavailable))
	s.ObserveTier(types.TierLocal, time.Second, context.DeadlineExceeded)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "remote", snap[0].Name)
	assert.Equal(t, int64(2), snap[0].Attempts)
	assert.Equal(t, int64(1), snap[0].Failures)
	assert.Equal(t, 200.0, snap[0].AverageLatencyMs)
	assert.Equal(t, int64(1), snap[0].FailuresByClass["unavailable"])
	assert.NotNil(t, snap[0].LastFailureAt)
	assert.Equal(t, int64(1), snap[1].FailuresByClass["timeout"])
	assert.Equal(t, 0.5, FailureRate(snap[0]))
}

func TestService_ScanCodebase(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh install reports only missing feedback", func(t *testing.T) {
		f := setupMonitoringTest(t)
		issues := f.service.ScanCodebase(ctx)
		require.NotNil(t, issues)
		require.Len(t, issues, 1)
		assert.Equal(t, "feedback", issues[0].Component)
		assert.Equal(t, types.SeverityInfo, issues[0].Severity)
	})

	t.Run("disabled remote and failing local", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.tiers.Register(types.TierRemote, false)
		for i := 0; i < 10; i++ {
			f.tiers.ObserveTier(types.TierLocal, time.Millisecond, providers.ErrProviderUnavailable)
		}
		rate(t, f, "u1", 4)

		issues := f.service.ScanCodebase(ctx)
		require.Len(t, issues, 2)
		assert.Equal(t, types.Issue{Component: "tier.remote", Severity: types.SeverityWarning, Message: "remote tier is disabled"}, issues[0])
		assert.Equal(t, "tier.local", issues[1].Component)
		assert.Equal(t, types.SeverityCritical, issues[1].Severity)
	})

	t.Run("failing dependency check is critical", func(t *testing.T) {
		f := setupMonitoringTest(t, DependencyCheck{Name: "postgres", Check: func(context.Context) error { return errors.New("refused") }})
		rate(t, f, "u1", 5)
		issues := f.service.ScanCodebase(ctx)
		require.Len(t, issues, 1)
		assert.Equal(t, "postgres", issues[0].Component)
		assert.Equal(t, types.SeverityCritical, issues[0].Severity)
	})
}

func TestService_GenerateHealthReport(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		f := setupMonitoringTest(t)
		rate(t, f, "u1", 5, 4)
		f.tiers.ObserveTier(types.TierRemote, 10*time.Millisecond, nil)

		report := f.service.GenerateHealthReport(ctx)
		assert.Equal(t, types.HealthHealthy, report.Status)
		assert.Equal(t, now, report.GeneratedAt)
		assert.Len(t, report.Tiers, 3)
		assert.Equal(t, 2, report.Feedback.Count)
		assert.Empty(t, report.Issues)
	})

	t.Run("degraded when remote disabled", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.tiers.Register(types.TierRemote, false)
		assert.Equal(t, types.HealthDegraded, f.service.GenerateHealthReport(ctx).Status)
	})

	t.Run("unhealthy when a dependency is down", func(t *testing.T) {
		f := setupMonitoringTest(t, DependencyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("timeout") }})
		assert.Equal(t, types.HealthUnhealthy, f.service.GenerateHealthReport(ctx).Status)
	})
}

func TestService_CheckForProactiveNotifications(t *testing.T) {
	ctx := context.Background()

	t.Run("missing user is a validation error", func(t *testing.T) {
		f := setupMonitoringTest(t)
		_, err := f.service.CheckForProactiveNotifications(ctx, "")
		assert.ErrorIs(t, err, types.ErrValidation)
	})

	t.Run("new listing in wishlist category", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.activity.On("FindUserWishlist", mock.Anything, "u1", wishlistLimit).
			Return([]types.WishlistItem{{ListingID: "w1", Category: "Camera"}}, nil)
		f.listings.On("FindRecentListings", mock.Anything, []string{"camera"}, now.Add(-72*time.Hour), newListingLimit).
			Return([]types.Listing{
				{ID: "w1", Title: "Already wished", Category: "camera", CreatedAt: now},
				{ID: "n1", Title: "Canon R6", Category: "camera", Location: "Makati", CreatedAt: now.Add(-time.Hour)},
			}, nil)

		n, err := f.service.CheckForProactiveNotifications(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Equal(t, NotificationNewWishlistMatch, n.Kind)
		assert.Equal(t, []string{"n1"}, n.ListingIDs)
		assert.Contains(t, n.Message, "Canon R6")

		again, err := f.service.CheckForProactiveNotifications(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, again)
		f.activity.AssertNumberOfCalls(t, "FindUserWishlist", 1)
	})

	t.Run("falls back to a strong recommendation", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.activity.On("FindUserWishlist", mock.Anything, "u2", wishlistLimit).Return(nil, nil)
		f.recommender.On("RankCandidates", mock.Anything, "u2", 1).
			Return([]types.RecommendationCandidate{{Listing: types.Listing{ID: "r1", Title: "GoPro", Location: "Taguig"}, Score: 5.2}}, nil)

		n, err := f.service.CheckForProactiveNotifications(ctx, "u2")
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Equal(t, NotificationRecommendation, n.Kind)
		assert.Equal(t, []string{"r1"}, n.ListingIDs)
	})

	t.Run("weak recommendation is not worth a notification", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.activity.On("FindUserWishlist", mock.Anything, "u3", wishlistLimit).Return(nil, nil)
		f.recommender.On("RankCandidates", mock.Anything, "u3", 1).
			Return([]types.RecommendationCandidate{{Listing: types.Listing{ID: "r1"}, Score: 1}}, nil)

		n, err := f.service.CheckForProactiveNotifications(ctx, "u3")
		require.NoError(t, err)
		assert.Nil(t, n)

		// Nothing was sent, so the next check looks again.
		_, err = f.service.CheckForProactiveNotifications(ctx, "u3")
		require.NoError(t, err)
		f.recommender.AssertNumberOfCalls(t, "RankCandidates", 2)
	})

	t.Run("concurrent checks emit once", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.activity.On("FindUserWishlist", mock.Anything, "u6", wishlistLimit).Return(nil, nil)
		f.recommender.On("RankCandidates", mock.Anything, "u6", 1).
			Return([]types.RecommendationCandidate{{Listing: types.Listing{ID: "r1", Title: "GoPro"}, Score: 5}}, nil)

		var (
			wg      sync.WaitGroup
			emitted atomic.Int32
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := f.service.CheckForProactiveNotifications(ctx, "u6")
				assert.NoError(t, err)
				if n != nil {
					emitted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), emitted.Load())
	})

	t.Run("suppressed after poor feedback", func(t *testing.T) {
		f := setupMonitoringTest(t)
		rate(t, f, "u4", 1, 2, 2)

		n, err := f.service.CheckForProactiveNotifications(ctx, "u4")
		require.NoError(t, err)
		assert.Nil(t, n)
		f.activity.AssertNotCalled(t, "FindUserWishlist", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("repository error is returned", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.activity.On("FindUserWishlist", mock.Anything, "u5", wishlistLimit).Return(nil, errors.New("db down"))

		n, err := f.service.CheckForProactiveNotifications(ctx, "u5")
		require.Error(t, err)
		assert.Nil(t, n)

		_, err = f.service.CheckForProactiveNotifications(ctx, "u5")
		require.Error(t, err)
		f.activity.AssertNumberOfCalls(t, "FindUserWishlist", 2)
	})
}
