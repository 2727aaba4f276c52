package recommendations

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-ren-assistant/internal/api/aicontext"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/tuning"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

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

func setupServiceTest() (*ServiceImpl, *MockActivityRepository, *MockListingRepository, *tuning.Store) {
	activity := new(MockActivityRepository)
	listings := new(MockListingRepository)
	store := tuning.NewStore(defaultWeights)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewService(activity, listings, store, 2, 50, logger)
	s.now = func() time.Time { return now }
	return s, activity, listings, store
}

func TestService_GetRecommendations(t *testing.T) {
	ctx := context.Background()

	t.Run("user without activity gets empty result", func(t *testing.T) {
		s, activity, listings, _ := setupServiceTest()
		activity.On("FindUserBookings", mock.Anything, "u0", signalLimit).Return(nil, nil)
		activity.On("FindUserWishlist", mock.Anything, "u0", signalLimit).Return(nil, nil)
		activity.On("FindUserReviews", mock.Anything, "u0", signalLimit).Return(nil, nil)

		out, err := s.GetRecommendations(ctx, "u0", 5)
		require.NoError(t, err)
		assert.NotNil(t, out)
		assert.Empty(t, out)
		listings.AssertNotCalled(t, "FindListingsByCategories", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("anonymous user gets empty result", func(t *testing.T) {
		s, activity, _, _ := setupServiceTest()
		out, err := s.GetRecommendations(ctx, "", 5)
		require.NoError(t, err)
		assert.Empty(t, out)
		activity.AssertNotCalled(t, "FindUserBookings", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("success with default limit and own listings excluded", func(t *testing.T) {
		s, activity, listings, _ := setupServiceTest()
		activity.On("FindUserBookings", mock.Anything, "u1", signalLimit).Return([]types.Booking{{ListingID: "b1", Category: "camera"}}, nil)
		activity.On("FindUserWishlist", mock.Anything, "u1", signalLimit).Return([]types.WishlistItem{{ListingID: "w1", Category: "bike"}}, nil)
		activity.On("FindUserReviews", mock.Anything, "u1", signalLimit).Return(nil, nil)

		wish := listing("w1", "bike", 4, time.Hour)
		listings.On("FindListingsByIDs", mock.Anything, []string{"w1"}).Return([]types.Listing{wish}, nil)
		own := listing("mine", "camera", 5, time.Hour)
		own.OwnerID = "u1"
		listings.On("FindListingsByCategories", mock.Anything, []string{"bike", "camera"}, 50).Return([]types.Listing{
			own,
			listing("c1", "camera", 2, 48*time.Hour),
			wish,
		}, nil)

		out, err := s.GetRecommendations(ctx, "u1", 0)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "w1", out[0].ID)
		assert.Equal(t, "c1", out[1].ID)
		activity.AssertExpectations(t)
		listings.AssertExpectations(t)
	})

	t.Run("published tuning changes ranking", func(t *testing.T) {
		s, activity, listings, store := setupServiceTest()
		activity.On("FindUserBookings", mock.Anything, "u2", signalLimit).Return([]types.Booking{{ListingID: "x", Category: "camera"}}, nil)
		activity.On("FindUserWishlist", mock.Anything, "u2", signalLimit).Return([]types.WishlistItem{{ListingID: "w1", Category: "bike"}}, nil)
		activity.On("FindUserReviews", mock.Anything, "u2", signalLimit).Return(nil, nil)
		listings.On("FindListingsByIDs", mock.Anything, []string{"w1"}).Return([]types.Listing{listing("w1", "bike", 4, time.Hour)}, nil)
		listings.On("FindListingsByCategories", mock.Anything, []string{"bike", "camera"}, 50).Return([]types.Listing{listing("c1", "camera", 4, time.Hour)}, nil)

		before, err := s.RankCandidates(ctx, "u2", 1)
		require.NoError(t, err)
		assert.Equal(t, "w1", before[0].Listing.ID)

		next := store.Load()
		next.Version++
		next.Recommendation.Wishlist = 0
		next.Recommendation.CategoryBooking = 5
		store.Publish(next)

		after, err := s.RankCandidates(ctx, "u2", 1)
		require.NoError(t, err)
		assert.Equal(t, "c1", after[0].Listing.ID)
	})

	t.Run("repository error", func(t *testing.T) {
		s, activity, _, _ := setupServiceTest()
		activity.On("FindUserBookings", mock.Anything, "u3", signalLimit).Return(nil, errors.New("db error"))
		activity.On("FindUserWishlist", mock.Anything, "u3", signalLimit).Return(nil, nil)
		activity.On("FindUserReviews", mock.Anything, "u3", signalLimit).Return(nil, nil)

		_, err := s.GetRecommendations(ctx, "u3", 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db error")
	})
}
