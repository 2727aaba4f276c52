package feedback

import (
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	appMiddleware "github.com/FACorreiaa/go-ren-assistant/app/middleware"
	"github.com/FACorreiaa/go-ren-assistant/internal/api"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

type Handler struct {
	service  Service
	improver *Improver
	logger   *slog.Logger
}

func NewHandler(service Service, improver *Improver, logger *slog.Logger) *Handler {
	return &Handler{service: service, improver: improver, logger: logger}
}

// LogFeedback records a rating for an assistant response. The user comes
// from the token when present.
func (h *Handler) LogFeedback(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("FeedbackHandler").Start(r.Context(), "LogFeedback", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/feedback"),
	))
	defer span.End()
	l := h.logger.With(slog.String("handler", "LogFeedback"))

	var in types.FeedbackInput
	if err := api.DecodeJSONBody(w, r, &in); err != nil {
		l.WarnContext(ctx, "Failed to decode feedback body", slog.Any("error", err))
		span.SetStatus(codes.Error, "invalid body")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// Identity only ever comes from the token.
	in.UserID, _ = appMiddleware.GetUserIDFromContext(ctx)

	rec, err := h.service.LogFeedback(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "log feedback failed")
		if errors.Is(err, api.ErrValidation) {
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to record feedback")
		return
	}

	span.SetStatus(codes.Ok, "feedback recorded")
	api.WriteJSONResponse(w, r, http.StatusCreated, rec)
}

func (h *Handler) GetFeedbackStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("FeedbackHandler").Start(r.Context(), "GetFeedbackStats", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/feedback/stats"),
	))
	defer span.End()

	stats, err := h.service.GetFeedbackStats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to compute feedback stats", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "stats failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to compute feedback stats")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, stats)
}

func (h *Handler) RunImprovement(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("FeedbackHandler").Start(r.Context(), "RunImprovement", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/improvement/run"),
	))
	defer span.End()

	analysis, err := h.improver.UpdateBehavior(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Manual behavior update failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to update behavior")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, analysis)
}

func (h *Handler) GetImprovementReport(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("FeedbackHandler").Start(r.Context(), "GetImprovementReport", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/improvement/report"),
	))
	defer span.End()

	report, err := h.improver.GetImprovementReport(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to build improvement report", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "report failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to build improvement report")
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, report)
}
