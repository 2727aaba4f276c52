// Package suggestions turns an assembled context into short follow-up
// prompts and proactive cards.
package suggestions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/go-ren-assistant/internal/api/intent"
	"github.com/FACorreiaa/go-ren-assistant/internal/api/location"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

type Options struct {
	MaxSuggestions         int
	MaxLocationSuggestions int
	DefaultLocation        string
	UpcomingWindow         time.Duration
}

// Engine holds only immutable configuration; the same context always yields
// the same suggestions.
type Engine struct {
	logger   *slog.Logger
	resolver *location.Resolver
	opts     Options
	now      func() time.Time
}

func NewEngine(resolver *location.Resolver, opts Options, logger *slog.Logger) *Engine {
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 8
	}
	if opts.MaxLocationSuggestions <= 0 {
		opts.MaxLocationSuggestions = 4
	}
	if opts.DefaultLocation == "" {
		opts.DefaultLocation = "Manila"
	}
	if opts.UpcomingWindow <= 0 {
		opts.UpcomingWindow = 72 * time.Hour
	}
	return &Engine{logger: logger, resolver: resolver, opts: opts, now: time.Now}
}

// GenerateContextualSuggestions returns location-derived suggestions first,
// then preference-derived ones, deduplicated and capped. It never fails: any
// internal error yields an empty result.
func (e *Engine) GenerateContextualSuggestions(ctx context.Context, c types.AIContext) (out []string) {
	ctx, span := otel.Tracer("SuggestionEngine").Start(ctx, "GenerateContextualSuggestions")
	defer span.End()
	l := e.logger.With(slog.String("method", "GenerateContextualSuggestions"))

	defer func() {
		if r := recover(); r != nil {
			l.ErrorContext(ctx, "Suggestion generation failed", slog.Any("panic", r))
			span.SetAttributes(attribute.Bool("recovered", true))
			out = []string{}
		}
	}()

	place, near := e.resolvePlace(ctx, l, c)
	if len(near) > e.opts.MaxLocationSuggestions {
		near = near[:e.opts.MaxLocationSuggestions]
	}

	candidates := make([]string, 0, len(near)+len(c.UserPreferences.Categories)+2)
	candidates = append(candidates, near...)
	candidates = append(candidates, preferenceSuggestions(c, place)...)

	out = dedupe(candidates, e.opts.MaxSuggestions)
	span.SetAttributes(attribute.String("place", place), attribute.Int("count", len(out)))
	return out
}

// GetContextualSuggestions is an alias of GenerateContextualSuggestions.
func (e *Engine) GetContextualSuggestions(ctx context.Context, c types.AIContext) []string {
	return e.GenerateContextualSuggestions(ctx, c)
}

// resolvePlace picks the anchor place: reverse-geocoded coordinates first,
// then the first preferred location, then the configured default.
func (e *Engine) resolvePlace(ctx context.Context, l *slog.Logger, c types.AIContext) (string, []string) {
	if g := c.CurrentGeolocation; g != nil {
		place, err := e.resolver.ReverseGeocode(*g)
		if err == nil {
			return place, e.resolver.Nearby(place, g)
		}
		l.DebugContext(ctx, "Reverse geocode missed, using preferred location",
			slog.Float64("lat", g.Latitude), slog.Float64("lon", g.Longitude), slog.Any("error", err))
	}

	place, ok := c.PreferredLocation()
	if !ok {
		place = e.opts.DefaultLocation
	}
	if canon, ok := e.resolver.Graph().Canonical(place); ok {
		place = canon
	}
	return place, e.resolver.Nearby(place, nil)
}

func preferenceSuggestions(c types.AIContext, place string) []string {
	var out []string
	for _, category := range c.UserPreferences.Categories {
		category = strings.TrimSpace(category)
		if category == "" {
			continue
		}
		out = append(out, fmt.Sprintf("Browse %s rentals near %s", category, place))
	}
	if last, ok := c.LastUserTurn(); ok {
		if category := intent.DetectCategory(last); category != "" {
			out = append(out, fmt.Sprintf("Continue searching for %s", category))
		}
	}
	if len(out) == 0 {
		out = append(out, fmt.Sprintf("Explore popular rentals near %s", place))
	}
	return out
}

// dedupe keeps the first occurrence of each entry (case-insensitive) and
// stops at limit.
func dedupe(items []string, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, min(len(items), limit))
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
