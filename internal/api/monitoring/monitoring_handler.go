package monitoring

import (
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
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// GetHealth answers 503 only when the report is unhealthy.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("MonitoringHandler").Start(r.Context(), "GetHealth", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/monitoring/health"),
	))
	defer span.End()

	report := h.service.GenerateHealthReport(ctx)
	status := http.StatusOK
	if report.Status == types.HealthUnhealthy {
		status = http.StatusServiceUnavailable
		span.SetStatus(codes.Error, "unhealthy")
	}
	api.WriteJSONResponse(w, r, status, report)
}

func (h *Handler) GetIssues(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("MonitoringHandler").Start(r.Context(), "GetIssues", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/monitoring/issues"),
	))
	defer span.End()

	api.WriteJSONResponse(w, r, http.StatusOK, h.service.ScanCodebase(ctx))
}

// GetNotification returns the pending notification for the caller, or 204.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("MonitoringHandler").Start(r.Context(), "GetNotification", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/notifications"),
	))
	defer span.End()
	l := h.logger.With(slog.String("handler", "GetNotification"))

	userID, ok := appMiddleware.GetUserIDFromContext(ctx)
	if !ok {
		l.WarnContext(ctx, "User ID not found in context")
		span.SetStatus(codes.Error, "User ID not found in context")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	n, err := h.service.CheckForProactiveNotifications(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to check notifications", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "notification check failed")
		api.ErrorResponse(w, r, api.StatusForError(err), "Failed to check notifications")
		return
	}
	if n == nil {
		api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, n)
}
