package aicontext

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

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindUserPreferences(ctx context.Context, userID string) (*StoredPreferences, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StoredPreferences), args.Error(1)
}

func (m *MockRepository) FindUserBookings(ctx context.Context, userID string, limit int) ([]types.Booking, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Booking), args.Error(1)
}

func (m *MockRepository) FindUserWishlist(ctx context.Context, userID string, limit int) ([]types.WishlistItem, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.WishlistItem), args.Error(1)
}

func (m *MockRepository) FindUserReviews(ctx context.Context, userID string, limit int) ([]types.Review, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Review), args.Error(1)
}

func (m *MockRepository) CountUserMessages(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func setupAssemblerTest() (*Assembler, *MockRepository, *MemoryHistoryStore) {
	repo := new(MockRepository)
	history := NewMemoryHistoryStore(20)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewAssembler(repo, history, 4, logger), repo, history
}

func TestAssembler_Assemble(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous request gets defaults only", func(t *testing.T) {
		a, repo, _ := setupAssemblerTest()
		in := types.AIContext{
			UserPreferences: types.UserPreferences{Categories: []string{" Camera", "tools", "camera ", ""}},
		}

		out := a.Assemble(ctx, in)

		assert.Equal(t, DefaultLanguage, out.UserPreferences.Language)
		assert.Equal(t, DefaultCurrency, out.UserPreferences.Currency)
		assert.Equal(t, []string{"camera", "tools"}, out.UserPreferences.Categories)
		assert.Equal(t, []string{" Camera", "tools", "camera ", ""}, in.UserPreferences.Categories)
		assert.Nil(t, out.Activity)
		repo.AssertNotCalled(t, "FindUserPreferences", mock.Anything, mock.Anything)
	})

	t.Run("invalid geolocation is dropped", func(t *testing.T) {
		a, _, _ := setupAssemblerTest()
		in := types.AIContext{CurrentGeolocation: &types.Geolocation{Latitude: 200, Longitude: 10}}
		out := a.Assemble(ctx, in)
		assert.Nil(t, out.CurrentGeolocation)
		assert.NotNil(t, in.CurrentGeolocation)
	})

	t.Run("history truncated to latest turns", func(t *testing.T) {
		a, _, _ := setupAssemblerTest()
		var turns []types.ConversationTurn
		for _, c := range []string{"1", "2", "3", "4", "5", "6"} {
			turns = append(turns, types.ConversationTurn{Role: types.RoleUser, Content: c})
		}
		out := a.Assemble(ctx, types.AIContext{ConversationHistory: turns})
		require.Len(t, out.ConversationHistory, 4)
		assert.Equal(t, "3", out.ConversationHistory[0].Content)
		assert.Len(t, turns, 6)
	})

	t.Run("history loaded from store when caller sent none", func(t *testing.T) {
		a, _, history := setupAssemblerTest()
		require.NoError(t, history.Append(ctx, "s1",
			types.ConversationTurn{Role: types.RoleUser, Content: "hi"},
			types.ConversationTurn{Role: types.RoleAssistant, Content: "hello"},
		))
		out := a.Assemble(ctx, types.AIContext{SessionID: "s1"})
		require.Len(t, out.ConversationHistory, 2)
		assert.Equal(t, "hello", out.ConversationHistory[1].Content)
	})

	t.Run("known user is enriched", func(t *testing.T) {
		a, repo, _ := setupAssemblerTest()
		booking := types.Booking{ID: "b1", ListingID: "l1", Category: "camera", StartDate: time.Now()}
		repo.On("FindUserPreferences", mock.Anything, "u1").Return(&StoredPreferences{
			Language: "fil", Currency: "PHP", Categories: []string{"Bike"}, PreferredLocations: []string{"Makati"},
		}, nil)
		repo.On("FindUserBookings", mock.Anything, "u1", activityLimit).Return([]types.Booking{booking}, nil)
		repo.On("FindUserWishlist", mock.Anything, "u1", activityLimit).Return([]types.WishlistItem{{ListingID: "l2", Category: "bike"}}, nil)
		repo.On("FindUserReviews", mock.Anything, "u1", activityLimit).Return(nil, nil)
		repo.On("CountUserMessages", mock.Anything, "u1").Return(12, nil)

		out := a.Assemble(ctx, types.AIContext{UserID: "u1"})

		assert.Equal(t, "fil", out.UserPreferences.Language)
		assert.Equal(t, []string{"bike"}, out.UserPreferences.Categories)
		loc, ok := out.PreferredLocation()
		assert.True(t, ok)
		assert.Equal(t, "Makati", loc)
		require.NotNil(t, out.Activity)
		assert.Equal(t, []types.Booking{booking}, out.Activity.Bookings)
		assert.Equal(t, 12, out.Activity.MessageCount)
		repo.AssertExpectations(t)
	})

	t.Run("enrichment failures are skipped", func(t *testing.T) {
		a, repo, _ := setupAssemblerTest()
		repo.On("FindUserPreferences", mock.Anything, "u2").Return(nil, types.ErrNotFound)
		repo.On("FindUserBookings", mock.Anything, "u2", activityLimit).Return(nil, errors.New("db down"))
		repo.On("FindUserWishlist", mock.Anything, "u2", activityLimit).Return([]types.WishlistItem{{ListingID: "l9", Category: "tools"}}, nil)
		repo.On("FindUserReviews", mock.Anything, "u2", activityLimit).Return(nil, errors.New("db down"))
		repo.On("CountUserMessages", mock.Anything, "u2").Return(0, errors.New("db down"))

		out := a.Assemble(ctx, types.AIContext{UserID: "u2", UserPreferences: types.UserPreferences{Language: "en"}})

		require.NotNil(t, out.Activity)
		assert.Empty(t, out.Activity.Bookings)
		assert.Len(t, out.Activity.Wishlist, 1)
		assert.Equal(t, "en", out.UserPreferences.Language)
		repo.AssertExpectations(t)
	})
}

func TestMemoryHistoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryHistoryStore(3)
	for _, c := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Append(ctx, "s", types.ConversationTurn{Role: types.RoleUser, Content: c}))
	}

	turns, err := s.Recent(ctx, "s", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "b", turns[0].Content)

	turns, err = s.Recent(ctx, "s", 1)
	require.NoError(t, err)
	assert.Equal(t, []types.ConversationTurn{{Role: types.RoleUser, Content: "d"}}, turns)

	turns, err = s.Recent(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
}
