package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appMiddleware "github.com/FACorreiaa/go-ren-assistant/app/middleware"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

func TestHandler_GetHealth(t *testing.T) {
	t.Run("degraded still answers 200", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.tiers.Register(types.TierRemote, false)
		h := NewHandler(f.service, f.service.logger)

		rr := httptest.NewRecorder()
		h.GetHealth(rr, httptest.NewRequest(http.MethodGet, "/monitoring/health", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var report types.HealthReport
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
		assert.Equal(t, types.HealthDegraded, report.Status)
	})

	t.Run("unhealthy answers 503", func(t *testing.T) {
		f := setupMonitoringTest(t, DependencyCheck{Name: "postgres", Check: func(context.Context) error { return errors.New("refused") }})
		h := NewHandler(f.service, f.service.logger)

		rr := httptest.NewRecorder()
		h.GetHealth(rr, httptest.NewRequest(http.MethodGet, "/monitoring/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestHandler_GetIssues(t *testing.T) {
	f := setupMonitoringTest(t)
	h := NewHandler(f.service, f.service.logger)

	rr := httptest.NewRecorder()
	h.GetIssues(rr, httptest.NewRequest(http.MethodGet, "/monitoring/issues", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var issues []types.Issue
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, types.SeverityInfo, issues[0].Severity)
}

func TestHandler_GetNotification(t *testing.T) {
	withUser := func(userID string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
		return req.WithContext(appMiddleware.WithUserID(req.Context(), userID))
	}

	t.Run("requires identity", func(t *testing.T) {
		f := setupMonitoringTest(t)
		h := NewHandler(f.service, f.service.logger)
		rr := httptest.NewRecorder()
		h.GetNotification(rr, httptest.NewRequest(http.MethodGet, "/notifications", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("nothing to send", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.activity.On("FindUserWishlist", mock.Anything, "u1", wishlistLimit).Return(nil, nil)
		f.recommender.On("RankCandidates", mock.Anything, "u1", 1).Return(nil, nil)
		h := NewHandler(f.service, f.service.logger)

		rr := httptest.NewRecorder()
		h.GetNotification(rr, withUser("u1"))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("recommendation notification", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.activity.On("FindUserWishlist", mock.Anything, "u2", wishlistLimit).Return(nil, nil)
		f.recommender.On("RankCandidates", mock.Anything, "u2", 1).
			Return([]types.RecommendationCandidate{{Listing: types.Listing{ID: "r1", Title: "GoPro"}, Score: 6}}, nil)
		h := NewHandler(f.service, f.service.logger)

		rr := httptest.NewRecorder()
		h.GetNotification(rr, withUser("u2"))

		require.Equal(t, http.StatusOK, rr.Code)
		var n types.Notification
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &n))
		assert.Equal(t, NotificationRecommendation, n.Kind)
	})

	t.Run("repository failure is a server error", func(t *testing.T) {
		f := setupMonitoringTest(t)
		f.activity.On("FindUserWishlist", mock.Anything, "u3", wishlistLimit).Return(nil, errors.New("db down"))
		h := NewHandler(f.service, f.service.logger)

		rr := httptest.NewRecorder()
		h.GetNotification(rr, withUser("u3"))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
