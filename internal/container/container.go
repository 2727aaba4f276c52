package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	database "github.com/FACorreiaa/go-ren-assistant/app/db"
	appMiddleware "github.com/FACorreiaa/go-ren-assistant/app/middleware"
	"github.com/FACorreiaa/go-ren-assistant/config"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/aicontext"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/assistant"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/feedback"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/location"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/monitoring"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/providers"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/recommendations"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/responder"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/suggestions"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/tuning"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const improvementRunTimeout = 2 * time.Minute

// Container holds all application dependencies. Everything is built once
// here and passed down explicitly.
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool
	Redis  *redis.Client

	Tuning     *tuning.Store
	TierStats  *monitoring.TierStats
	Improver   *feedback.Improver
	Scheduler  *feedback.Scheduler
	Assistant  *assistant.ServiceImpl
	Monitoring *monitoring.ServiceImpl

	Auth                  *appMiddleware.Authenticator
	AssistantHandler      *assistant.Handler
	FeedbackHandler       *feedback.Handler
	RecommendationHandler *recommendations.Handler
	MonitoringHandler     *monitoring.Handler
}

// NewContainer wires the assistant. Postgres and Redis are optional: when
// disabled or unreachable the in-memory stores take over.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	graph, err := location.LoadGraph(cfg.Location.GraphFile)
	if err != nil {
		logger.Error("Failed to load location graph", slog.Any("error", err))
		return nil, fmt.Errorf("failed to load location graph: %w", err)
	}
	resolver := location.NewResolver(graph, cfg.Location.ProximityKm, cfg.Location.GeocodeRadiusKm)

	var (
		marketplace  *aicontext.PostgresRepository
		feedbackRepo feedback.Repository = feedback.NewMemoryRepository()
		history      aicontext.HistoryStore
		depChecks    []monitoring.DependencyCheck
	)

	if cfg.Repositories.Postgres.Enabled {
		if pool, err := c.initPostgres(ctx); err != nil {
			logger.Warn("Postgres unavailable, using in-memory feedback store", slog.Any("error", err))
		} else {
			c.Pool = pool
			marketplace = aicontext.NewPostgresRepository(pool, logger)
			feedbackRepo = feedback.NewPostgresRepository(pool, logger)
			depChecks = append(depChecks, monitoring.DependencyCheck{Name: "postgres", Check: pool.Ping})
		}
	}

	maxHistory := cfg.Assistant.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 20
	}
	history = aicontext.NewMemoryHistoryStore(maxHistory)
	if cfg.Repositories.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Repositories.Redis.Addr,
			Password: cfg.Repositories.Redis.Password,
			DB:       cfg.Repositories.Redis.DB,
		})
		store := aicontext.NewRedisHistoryStore(client, cfg.Repositories.Redis.HistoryTTL, maxHistory)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := store.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("Redis unavailable, keeping conversation history in memory", slog.Any("error", err))
			_ = client.Close()
		} else {
			c.Redis = client
			history = store
			depChecks = append(depChecks, monitoring.DependencyCheck{Name: "redis", Check: store.Ping})
		}
	}

	c.Tuning = tuning.NewStore(cfg.Recommendations.Weights)
	c.TierStats = monitoring.NewTierStats()

	// Without a database the assistant still runs on caller-supplied context.
	var (
		activity aicontext.Repository
		listings aicontext.ListingRepository
	)
	if marketplace != nil {
		activity, listings = marketplace, marketplace
	} else {
		empty := aicontext.EmptyRepository{}
		activity, listings = empty, empty
	}

	assembler := aicontext.NewAssembler(activity, history, maxHistory, logger)
	engine := suggestions.NewEngine(resolver, suggestions.Options{
		MaxSuggestions:         cfg.Suggestions.MaxSuggestions,
		MaxLocationSuggestions: cfg.Suggestions.MaxLocationSuggestions,
		DefaultLocation:        cfg.Suggestions.DefaultLocation,
	}, logger)

	tiers := c.buildTiers(ctx)
	c.Assistant = assistant.NewService(assistant.Deps{
		Tiers:        tiers,
		Assembler:    assembler,
		Responder:    responder.New(cfg.Suggestions.DefaultLocation),
		Suggestions:  engine,
		Tuning:       c.Tuning,
		History:      history,
		Observer:     c.TierStats,
		HistoryTurns: cfg.Assistant.HistoryTurns,
	}, logger)

	recommender := recommendations.NewService(activity, listings, c.Tuning,
		cfg.Recommendations.Limit, cfg.Recommendations.CandidateLimit, logger)

	feedbackService := feedback.NewService(feedbackRepo, logger)
	c.Improver = feedback.NewImprover(feedbackRepo, c.Tuning, feedback.ImproverOptions{
		Window:     cfg.Improvement.Window,
		MinSamples: cfg.Improvement.MinSamples,
		MaxRecords: cfg.Improvement.MaxRecords,
		Step:       cfg.Improvement.Step,
	}, logger)
	if err := c.Improver.Restore(ctx); err != nil {
		logger.Warn("Starting with configured weights", slog.Any("error", err))
	}
	if cfg.Improvement.Schedule != "" {
		c.Scheduler, err = feedback.NewScheduler(c.Improver, cfg.Improvement.Schedule, improvementRunTimeout, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
	}

	c.Monitoring = monitoring.NewService(c.TierStats, graph, feedbackService, activity, listings, recommender,
		monitoring.Options{
			NewListingWindow: cfg.Notifications.NewListingWindow,
			DedupeTTL:        cfg.Notifications.DedupeTTL,
			MinScore:         cfg.Notifications.MinScore,
		}, logger, depChecks...)

	c.Auth = appMiddleware.NewAuthenticator(cfg.JWT, logger)
	c.AssistantHandler = assistant.NewHandler(c.Assistant, logger)
	c.FeedbackHandler = feedback.NewHandler(feedbackService, c.Improver, logger)
	c.RecommendationHandler = recommendations.NewHandler(recommender, logger)
	c.MonitoringHandler = monitoring.NewHandler(c.Monitoring, logger)

	logger.Info("Container initialized",
		slog.Bool("postgres", c.Pool != nil),
		slog.Bool("redis", c.Redis != nil),
		slog.Int("tiers", len(tiers)),
		slog.Int("places", graph.Size()))
	return c, nil
}

func (c *Container) initPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	dbConfig, err := database.NewDatabaseConfig(c.Config, c.Logger)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(dbConfig.ConnectionURL, c.Logger); err != nil {
		return nil, err
	}
	timeout := time.Duration(c.Config.Repositories.Postgres.MAXCONWAITINGTIME) * time.Second
	pool, err := database.Init(ctx, dbConfig.ConnectionURL, timeout, c.Logger)
	if err != nil {
		return nil, err
	}
	if !database.WaitForDB(ctx, pool, c.Logger) {
		pool.Close()
		return nil, fmt.Errorf("database not ready")
	}
	return pool, nil
}

// buildTiers returns the configured network tiers in fallback order.
func (c *Container) buildTiers(ctx context.Context) []assistant.TierConfig {
	cfg := c.Config.Providers
	var tiers []assistant.TierConfig

	c.TierStats.Register(types.TierRemote, c.Config.RemoteEnabled())
	if c.Config.RemoteEnabled() {
		gemini, err := providers.NewGeminiTier(ctx, cfg.Remote.APIKey, cfg.Remote.Model, c.Logger)
		if err != nil {
			c.Logger.Warn("Remote tier disabled", slog.Any("error", err))
			c.TierStats.Register(types.TierRemote, false)
		} else {
			tiers = append(tiers, assistant.TierConfig{Tier: gemini, Timeout: cfg.Remote.Timeout})
		}
	}

	c.TierStats.Register(types.TierLocal, cfg.Local.Enabled)
	if cfg.Local.Enabled {
		local := providers.NewLocalTier(cfg.Local.Host, cfg.Local.Model, cfg.Local.APIKey, c.Logger)
		tiers = append(tiers, assistant.TierConfig{Tier: local, Timeout: cfg.Local.Timeout})
	}

	c.TierStats.Register(types.TierRuleBased, true)
	return tiers
}

// Start launches background jobs.
func (c *Container) Start() {
	if c.Scheduler != nil {
		c.Scheduler.Start()
	}
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		c.Scheduler.Stop(ctx)
		cancel()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("Failed to close redis client", slog.Any("error", err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
