package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const (
	defaultLocalBaseURL = "http://localhost:11434/v1"
	defaultLocalModel   = "llama3.2"
	localMaxTokens      = 512
	localTemperature    = 0.4
)

var _ Tier = (*LocalTier)(nil)

// LocalTier talks to a self-hosted model server that speaks the OpenAI chat
// completions API (Ollama, llama.cpp, vLLM).
type LocalTier struct {
	logger *slog.Logger
	client *openai.Client
	model  string
}

func NewLocalTier(baseURL, model, apiKey string, logger *slog.Logger) *LocalTier {
	if baseURL == "" {
		baseURL = defaultLocalBaseURL
	}
	if model == "" {
		model = defaultLocalModel
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/")

	return &LocalTier{
		logger: logger,
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (t *LocalTier) Name() types.ResponseTier { return types.TierLocal }

func (t *LocalTier) Complete(ctx context.Context, p Prompt) (string, error) {
	ctx, span := otel.Tracer("Providers").Start(ctx, "LocalTier.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("model", t.model))

	messages := make([]openai.ChatCompletionMessage, 0, len(p.History)+2)
	if p.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	for _, turn := range p.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == types.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.Message})

	req := openai.ChatCompletionRequest{
		Model:       t.model,
		Messages:    messages,
		MaxTokens:   localMaxTokens,
		Temperature: localTemperature,
		Stream:      false,
	}

	start := time.Now()
	resp, err := t.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		t.logger.DebugContext(ctx, "Local completion failed",
			slog.String("model", t.model),
			slog.Int64("latency_ms", latency.Milliseconds()),
			slog.Any("error", err))
		return "", fmt.Errorf("%w: local model: %w", ErrProviderUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return "", fmt.Errorf("%w: local model returned no choices", ErrMalformedReply)
	}

	text := resp.Choices[0].Message.Content
	span.SetAttributes(attribute.Int("response.length", len(text)))
	span.SetStatus(codes.Ok, "completion generated")
	return text, nil
}
