// Package assistant is the tiered response generator: it tries each model
// tier in order and always falls back to the rule-based responder.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-ren-assistant/app/observability/metrics"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/aicontext"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/intent"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/providers"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/responder"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/suggestions"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/tuning"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const historyWriteTimeout = 2 * time.Second

// TierObserver receives the outcome of every tier attempt.
type TierObserver interface {
	ObserveTier(tier types.ResponseTier, elapsed time.Duration, err error)
}

// TierConfig is one network tier and its own deadline.
type TierConfig struct {
	Tier    providers.Tier
	Timeout time.Duration
}

type Service interface {
	ProcessMessage(ctx context.Context, message string, c types.AIContext) types.AIResponse
	GetContextualSuggestions(ctx context.Context, c types.AIContext) []string
	GetProactiveSuggestions(ctx context.Context, userID string, c types.AIContext) []types.Suggestion
}

var _ Service = (*ServiceImpl)(nil)

type ServiceImpl struct {
	logger       *slog.Logger
	tiers        []TierConfig
	assembler    *aicontext.Assembler
	responder    *responder.Responder
	suggestions  *suggestions.Engine
	tuning       *tuning.Store
	history      aicontext.HistoryStore
	observer     TierObserver
	historyTurns int
	newID        func() string
}

type Deps struct {
	Tiers        []TierConfig
	Assembler    *aicontext.Assembler
	Responder    *responder.Responder
	Suggestions  *suggestions.Engine
	Tuning       *tuning.Store
	History      aicontext.HistoryStore
	Observer     TierObserver
	HistoryTurns int
}

func NewService(d Deps, logger *slog.Logger) *ServiceImpl {
	tiers := make([]TierConfig, 0, len(d.Tiers))
	for _, tc := range d.Tiers {
		if tc.Tier == nil {
			continue
		}
		if tc.Timeout <= 0 {
			tc.Timeout = 30 * time.Second
		}
		tiers = append(tiers, tc)
	}
	return &ServiceImpl{
		logger:       logger,
		tiers:        tiers,
		assembler:    d.Assembler,
		responder:    d.Responder,
		suggestions:  d.Suggestions,
		tuning:       d.Tuning,
		history:      d.History,
		observer:     d.Observer,
		historyTurns: d.HistoryTurns,
		newID:        uuid.NewString,
	}
}

// ProcessMessage never fails and never returns empty text. Tiers run one at
// a time; once ctx is done the remaining network tiers are skipped and the
// rule-based reply is returned.
func (s *ServiceImpl) ProcessMessage(ctx context.Context, message string, in types.AIContext) types.AIResponse {
	ctx, span := otel.Tracer("AssistantService").Start(ctx, "ProcessMessage")
	defer span.End()

	messageID := s.newID()
	l := s.logger.With(slog.String("method", "ProcessMessage"), slog.String("messageID", messageID))

	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		reply := s.responder.Clarify()
		resp := s.fromRule(messageID, reply, reply.Suggestions)
		s.finish(ctx, l, resp)
		return resp
	}

	c := s.assembler.Assemble(ctx, in)
	detected := intent.Classify(trimmed)
	contextual := s.suggestions.GenerateContextualSuggestions(ctx, c)
	prompt := providers.BuildPrompt(trimmed, c, s.historyTurns)
	span.SetAttributes(attribute.String("intent", string(detected)))

	var resp types.AIResponse
	served := false
	for _, tc := range s.tiers {
		if err := ctx.Err(); err != nil {
			l.WarnContext(ctx, "Request cancelled, skipping remaining tiers", slog.Any("error", err))
			break
		}
		reply, err := s.attempt(ctx, l, tc, prompt)
		if err != nil {
			continue
		}
		suggested := contextual
		if len(suggested) == 0 {
			suggested = responder.Suggestions(detected)
		}
		resp = types.AIResponse{
			MessageID:   messageID,
			Text:        reply.Text,
			Suggestions: suggested,
			Action:      reply.Action,
			Tier:        tc.Tier.Name(),
			Intent:      detected,
		}
		served = true
		break
	}

	if !served {
		start := time.Now()
		reply := s.responder.Respond(trimmed, detected, c, s.tuning.Load())
		s.observe(ctx, types.TierRuleBased, time.Since(start), nil)
		resp = s.fromRule(messageID, reply, mergeSuggestions(reply.Suggestions, contextual))
	}

	s.remember(ctx, l, c.SessionID, trimmed, resp.Text)
	s.finish(ctx, l, resp)
	span.SetAttributes(attribute.String("tier", string(resp.Tier)))
	return resp
}

func (s *ServiceImpl) fromRule(messageID string, reply responder.Reply, suggested []string) types.AIResponse {
	return types.AIResponse{
		MessageID:   messageID,
		Text:        reply.Text,
		Suggestions: suggested,
		Action:      reply.Action,
		Tier:        types.TierRuleBased,
		Intent:      reply.Intent,
		TemplateID:  reply.TemplateID,
	}
}

type tierResult struct {
	raw string
	err error
}

// attempt runs one tier under its own deadline. A tier that ignores its
// context is abandoned when the deadline passes.
func (s *ServiceImpl) attempt(ctx context.Context, l *slog.Logger, tc TierConfig, prompt providers.Prompt) (providers.Reply, error) {
	name := tc.Tier.Name()
	tctx, cancel := context.WithTimeout(ctx, tc.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan tierResult, 1)
	go func() {
		raw, err := tc.Tier.Complete(tctx, prompt)
		done <- tierResult{raw: raw, err: err}
	}()

	var (
		reply providers.Reply
		err   error
	)
	select {
	case res := <-done:
		err = res.err
		if err == nil {
			reply, err = providers.ParseReply(res.raw)
		}
	case <-tctx.Done():
		err = fmt.Errorf("%w: %s tier: %w", providers.ErrProviderUnavailable, name, tctx.Err())
	}
	elapsed := time.Since(start)

	// A caller that went away is not a tier failure.
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		l.DebugContext(ctx, "Tier abandoned by caller",
			slog.String("tier", string(name)), slog.Duration("elapsed", elapsed))
		return providers.Reply{}, err
	}
	s.observe(ctx, name, elapsed, err)

	if err != nil {
		l.WarnContext(ctx, "Tier failed",
			slog.String("tier", string(name)),
			slog.Duration("elapsed", elapsed),
			slog.String("class", providers.ErrorClass(err)),
			slog.Any("error", err))
		return providers.Reply{}, err
	}
	l.DebugContext(ctx, "Tier succeeded", slog.String("tier", string(name)), slog.Duration("elapsed", elapsed))
	return reply, nil
}

func (s *ServiceImpl) observe(ctx context.Context, tier types.ResponseTier, elapsed time.Duration, err error) {
	metrics.Get().RecordTier(ctx, string(tier), elapsed.Seconds(), providers.ErrorClass(err))
	if s.observer != nil {
		s.observer.ObserveTier(tier, elapsed, err)
	}
}

// remember appends the exchange to the session history. It outlives request
// cancellation briefly so a finished answer is not lost.
func (s *ServiceImpl) remember(ctx context.Context, l *slog.Logger, sessionID, userText, assistantText string) {
	if sessionID == "" || s.history == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()
	err := s.history.Append(wctx, sessionID,
		types.ConversationTurn{Role: types.RoleUser, Content: userText},
		types.ConversationTurn{Role: types.RoleAssistant, Content: assistantText},
	)
	if err != nil {
		l.WarnContext(ctx, "Failed to persist conversation turn", slog.String("sessionID", sessionID), slog.Any("error", err))
	}
}

func (s *ServiceImpl) finish(ctx context.Context, l *slog.Logger, resp types.AIResponse) {
	metrics.Get().ResponsesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", string(resp.Tier)),
		attribute.String("intent", string(resp.Intent)),
	))
	l.InfoContext(ctx, "Response generated",
		slog.String("tier", string(resp.Tier)),
		slog.String("intent", string(resp.Intent)),
		slog.String("templateID", resp.TemplateID),
		slog.Int("suggestions", len(resp.Suggestions)))
}

func (s *ServiceImpl) GetContextualSuggestions(ctx context.Context, c types.AIContext) []string {
	return s.suggestions.GenerateContextualSuggestions(ctx, s.assembler.Assemble(ctx, c))
}

func (s *ServiceImpl) GetProactiveSuggestions(ctx context.Context, userID string, c types.AIContext) []types.Suggestion {
	c.UserID = userID
	return s.suggestions.GetProactiveSuggestions(ctx, userID, s.assembler.Assemble(ctx, c))
}

// mergeSuggestions keeps first-seen order and drops case-insensitive repeats.
func mergeSuggestions(lists ...[]string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, list := range lists {
		for _, item := range list {
			key := strings.ToLower(strings.TrimSpace(item))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
