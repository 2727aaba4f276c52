package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	appLogger "github.com/FACorreiaa/go-ren-assistant/app/logger"
	"github.com/FACorreiaa/go-ren-assistant/app/observability/metrics"
	"github.com/FACorreiaa/go-ren-assistant/app/tracer"
	"github.com/FACorreiaa/go-ren-assistant/config"
	"github.com/FACorreiaa/go-ren-assistant/internal/container"
	"github.com/FACorreiaa/go-ren-assistant/internal/router"
)

const serviceName = "ren-assistant"

var portOverride string

var rootCmd = &cobra.Command{
	Use:   "ren-assistant",
	Short: "Conversational assistant for the REN rental marketplace",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found or error loading:", err)
		}
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

var improveCmd = &cobra.Command{
	Use:   "improve",
	Short: "Run one feedback-driven improvement pass and print the analysis",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
			analysis, err := c.Improver.UpdateBehavior(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, analysis)
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print the current health report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
			return printJSON(cmd, c.Monitoring.GenerateHealthReport(ctx))
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&portOverride, "port", "", "HTTP port, overrides server.HTTPPort")
	rootCmd.AddCommand(serveCmd, improveCmd, healthCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing config: %w", err)
	}
	if portOverride != "" {
		cfg.Server.HTTPPort = portOverride
	}
	logger := appLogger.New(cfg.Mode, os.Stdout)
	slog.SetDefault(logger)
	return &cfg, logger, nil
}

// withContainer builds the dependencies for one-shot commands.
func withContainer(ctx context.Context, fn func(context.Context, *container.Container) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := container.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	providers, err := tracer.InitTracingAndMetrics(serviceName)
	if err != nil {
		logger.Error("Failed to initialize telemetry", slog.Any("error", err))
		return err
	}
	metrics.InitAppMetrics()

	c, err := container.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize container", slog.Any("error", err))
		return err
	}
	defer c.Close()
	c.Start()

	mainRouter := router.SetupRouter(&router.Config{
		Auth:                  c.Auth,
		AssistantHandler:      c.AssistantHandler,
		FeedbackHandler:       c.FeedbackHandler,
		RecommendationHandler: c.RecommendationHandler,
		MonitoringHandler:     c.MonitoringHandler,
		MetricsHandler:        providers.MetricsHandler(),
	})

	timeout := cfg.Server.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(appLogger.StructuredLogger(logger))
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.StripSlashes)
	mux.Use(middleware.Timeout(timeout))
	mux.Use(middleware.Compress(5, "application/json"))
	mux.Mount("/", mainRouter)

	serverAddress := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
	}

	logger.Info("Application shut down complete.")
	return nil
}
