package assistant

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	appMiddleware "github.com/FACorreiaa/go-ren-assistant/app/middleware"
	"github.com/FACorreiaa/go-ren-assistant/internal/api"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

type ChatRequest struct {
	Message string          `json:"message"`
	Context types.AIContext `json:"context"`
}

type SuggestionsRequest struct {
	Context types.AIContext `json:"context"`
}

type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

type ProactiveResponse struct {
	Suggestions []types.Suggestion `json:"suggestions"`
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// decodeContext reads the body into dst and validates the embedded context.
// The user identity is always taken from the token, never the body.
func (h *Handler) decodeContext(w http.ResponseWriter, r *http.Request, dst any, c *types.AIContext) bool {
	ctx := r.Context()
	if err := api.DecodeJSONBody(w, r, dst); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	if err := c.Validate(); err != nil {
		h.logger.WarnContext(ctx, "Invalid assistant context", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	c.UserID, _ = appMiddleware.GetUserIDFromContext(ctx)
	c.Activity = nil
	return true
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("AssistantHandler").Start(r.Context(), "Chat", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/chat"),
	))
	defer span.End()

	var req ChatRequest
	if !h.decodeContext(w, r.WithContext(ctx), &req, &req.Context) {
		span.SetStatus(codes.Error, "invalid request")
		return
	}

	resp := h.service.ProcessMessage(ctx, req.Message, req.Context)
	span.SetAttributes(attribute.String("tier", string(resp.Tier)), attribute.String("message.id", resp.MessageID))
	span.SetStatus(codes.Ok, "response generated")
	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}

func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("AssistantHandler").Start(r.Context(), "Suggestions", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/suggestions"),
	))
	defer span.End()

	var req SuggestionsRequest
	if !h.decodeContext(w, r.WithContext(ctx), &req, &req.Context) {
		span.SetStatus(codes.Error, "invalid request")
		return
	}
	out := h.service.GetContextualSuggestions(ctx, req.Context)
	if out == nil {
		out = []string{}
	}
	api.WriteJSONResponse(w, r, http.StatusOK, SuggestionsResponse{Suggestions: out})
}

func (h *Handler) ProactiveSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("AssistantHandler").Start(r.Context(), "ProactiveSuggestions", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/suggestions/proactive"),
	))
	defer span.End()

	var req SuggestionsRequest
	if !h.decodeContext(w, r.WithContext(ctx), &req, &req.Context) {
		span.SetStatus(codes.Error, "invalid request")
		return
	}
	if req.Context.UserID == "" {
		span.SetStatus(codes.Error, "User ID not found in context")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}
	out := h.service.GetProactiveSuggestions(ctx, req.Context.UserID, req.Context)
	if out == nil {
		out = []types.Suggestion{}
	}
	api.WriteJSONResponse(w, r, http.StatusOK, ProactiveResponse{Suggestions: out})
}
