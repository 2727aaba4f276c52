package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appMiddleware "github.com/FACorreiaa/go-ren-assistant/app/middleware"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/assistant"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/feedback"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/monitoring"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/recommendations"
)

// Config contains dependencies needed for the router setup
type Config struct {
	Auth                  *appMiddleware.Authenticator
	AssistantHandler      *assistant.Handler
	FeedbackHandler       *feedback.Handler
	RecommendationHandler *recommendations.Handler
	MonitoringHandler     *monitoring.Handler
	MetricsHandler        http.Handler
	AllowedOrigins        []string
}

// SetupRouter initializes the application router. Server-wide middleware
// (request ID, logging, recoverer) is applied in main before mounting.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1/ren", func(r chi.Router) {
		// Anonymous callers are served; a valid token attaches the user.
		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.OptionalAuth)

			r.Post("/chat", cfg.AssistantHandler.Chat)
			r.Post("/suggestions", cfg.AssistantHandler.Suggestions)

			r.Get("/feedback/stats", cfg.FeedbackHandler.GetFeedbackStats)
			r.Get("/improvement/report", cfg.FeedbackHandler.GetImprovementReport)

			r.Get("/monitoring/health", cfg.MonitoringHandler.GetHealth)
			r.Get("/monitoring/issues", cfg.MonitoringHandler.GetIssues)
		})

		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.RequireAuth)

			r.Post("/suggestions/proactive", cfg.AssistantHandler.ProactiveSuggestions)
			r.Get("/recommendations", cfg.RecommendationHandler.GetRecommendations)
			r.Get("/notifications", cfg.MonitoringHandler.GetNotification)
			r.Post("/feedback", cfg.FeedbackHandler.LogFeedback)

			r.With(cfg.Auth.RequireRole("admin")).Post("/improvement/run", cfg.FeedbackHandler.RunImprovement)
		})
	})

	return r
}
