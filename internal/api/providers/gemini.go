package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const defaultGeminiModel = "gemini-2.0-flash"

var _ Tier = (*GeminiTier)(nil)

// GeminiTier is the remote tier backed by the Gemini API.
type GeminiTier struct {
	logger *slog.Logger
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func NewGeminiTier(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiTier, error) {
	ctx, span := otel.Tracer("Providers").Start(ctx, "NewGeminiTier")
	defer span.End()

	if apiKey == "" {
		err := errors.New("gemini API key is not set")
		span.RecordError(err)
		span.SetStatus(codes.Error, "API key not set")
		return nil, err
	}
	return newGeminiTier(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model, logger)
}

func newGeminiTier(ctx context.Context, cc *genai.ClientConfig, model string, logger *slog.Logger) (*GeminiTier, error) {
	span := trace.SpanFromContext(ctx)
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create Gemini client")
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiTier{
		logger: logger,
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.4)},
	}, nil
}

func (g *GeminiTier) Name() types.ResponseTier { return types.TierRemote }

func (g *GeminiTier) Complete(ctx context.Context, p Prompt) (string, error) {
	ctx, span := otel.Tracer("Providers").Start(ctx, "GeminiTier.Complete", trace.WithAttributes(
		attribute.String("model", g.model),
		attribute.Int("history.turns", len(p.History)),
	))
	defer span.End()

	contents := make([]*genai.Content, 0, len(p.History)+1)
	for _, turn := range p.History {
		role := genai.Role(genai.RoleUser)
		if turn.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(p.Message, genai.RoleUser))

	config := *g.config
	if p.System != "" {
		config.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to generate content")
		return "", fmt.Errorf("%w: gemini: %w", ErrProviderUnavailable, err)
	}

	text := result.Text()
	if text == "" {
		span.SetStatus(codes.Error, "Empty response")
		return "", fmt.Errorf("%w: gemini returned no text", ErrMalformedReply)
	}
	span.SetAttributes(attribute.Int("response.length", len(text)))
	span.SetStatus(codes.Ok, "Content generated")
	return text, nil
}
