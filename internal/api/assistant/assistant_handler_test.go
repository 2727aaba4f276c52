package assistant

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appMiddleware "github.com/FACorreiaa/go-ren-assistant/app/middleware"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

func TestHandler_Chat(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantTier   types.ResponseTier
	}{
		{"greeting", `{"message":"Hello"}`, http.StatusOK, types.TierRuleBased},
		{"with context", `{"message":"find a camera","context":{"user_profile":{"preferred_locations":["Makati"]}}}`, http.StatusOK, types.TierRemote},
		{"bad role", `{"message":"hi","context":{"conversation_history":[{"role":"system","content":"x"}]}}`, http.StatusBadRequest, ""},
		{"bad coordinates", `{"message":"hi","context":{"current_geolocation":{"latitude":120,"longitude":0}}}`, http.StatusBadRequest, ""},
		{"malformed json", `{"message":`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := replying(types.TierRemote, "Sure, here you go.")
			var s *ServiceImpl
			if tt.wantTier == types.TierRemote {
				s, _, _ = setupAssistantTest(t, TierConfig{Tier: remote, Timeout: time.Second})
			} else {
				s, _, _ = setupAssistantTest(t)
			}
			h := NewHandler(s, s.logger)

			rr := httptest.NewRecorder()
			h.Chat(rr, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body)))

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp types.AIResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantTier, resp.Tier)
			assert.NotEmpty(t, resp.Text)
			assert.NotEmpty(t, resp.MessageID)
			assert.NotNil(t, resp.Action)
		})
	}
}

func TestHandler_Suggestions(t *testing.T) {
	s, _, _ := setupAssistantTest(t)
	h := NewHandler(s, s.logger)

	rr := httptest.NewRecorder()
	body := `{"context":{"user_profile":{"preferred_locations":["Manila"]}}}`
	h.Suggestions(rr, httptest.NewRequest(http.MethodPost, "/suggestions", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp SuggestionsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Suggestions, "Makati")
	assert.Contains(t, resp.Suggestions, "Taguig")
}

func TestHandler_ProactiveSuggestions(t *testing.T) {
	s, _, _ := setupAssistantTest(t)
	h := NewHandler(s, s.logger)

	t.Run("requires identity", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ProactiveSuggestions(rr, httptest.NewRequest(http.MethodPost, "/suggestions/proactive", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("authenticated user gets cards", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/suggestions/proactive", strings.NewReader(`{}`))
		req = req.WithContext(appMiddleware.WithUserID(req.Context(), "u1"))
		rr := httptest.NewRecorder()
		h.ProactiveSuggestions(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp struct {
			Suggestions []map[string]any `json:"suggestions"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Suggestions)
		assert.Equal(t, "discover", resp.Suggestions[len(resp.Suggestions)-1]["type"])
	})
}
