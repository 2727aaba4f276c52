package recommendations

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	appMiddleware "github.com/FACorreiaa/go-ren-assistant/app/middleware"
	"github.com/FACorreiaa/go-ren-assistant/app/observability/metrics"
	"github.com/FACorreiaa/go-ren-assistant/internal/api"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type Response struct {
	Listings []types.Listing `json:"listings"`
}

// GetRecommendations serves GET /recommendations?limit=N for the caller.
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("RecommendationHandler").Start(r.Context(), "GetRecommendations", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/recommendations"),
	))
	defer span.End()
	l := h.logger.With(slog.String("handler", "GetRecommendations"))

	userID, ok := appMiddleware.GetUserIDFromContext(ctx)
	if !ok {
		l.WarnContext(ctx, "User ID not found in context")
		span.SetStatus(codes.Error, "User ID not found in context")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit, err := api.QueryInt(r, "limit", 0)
	if err != nil {
		span.SetStatus(codes.Error, "invalid limit")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	listings, err := h.service.GetRecommendations(ctx, userID, limit)
	if err != nil {
		l.ErrorContext(ctx, "Failed to get recommendations", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "recommendations failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to retrieve recommendations")
		return
	}

	metrics.Get().RecommendationsServed.Add(ctx, int64(len(listings)))
	span.SetAttributes(attribute.Int("results", len(listings)))
	span.SetStatus(codes.Ok, "recommendations retrieved")
	api.WriteJSONResponse(w, r, http.StatusOK, Response{Listings: listings})
}
