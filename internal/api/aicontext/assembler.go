// Package aicontext builds the per-request context bundle the assistant
// reasons over: caller-supplied fields, stored preferences, conversation
// history and user activity.
package aicontext

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const (
	DefaultLanguage = "en"
	DefaultCurrency = "PHP"

	activityLimit = 50
)

type Assembler struct {
	logger     *slog.Logger
	repo       Repository
	history    HistoryStore
	maxHistory int
}

// NewAssembler wires the assembler. repo and history may be nil, in which
// case the matching enrichment is skipped.
func NewAssembler(repo Repository, history HistoryStore, maxHistory int, logger *slog.Logger) *Assembler {
	if maxHistory <= 0 {
		maxHistory = 20
	}
	return &Assembler{logger: logger, repo: repo, history: history, maxHistory: maxHistory}
}

// Assemble returns an enriched copy of in. in itself is never modified.
// Enrichment failures are logged and the field is left as the caller sent it.
func (a *Assembler) Assemble(ctx context.Context, in types.AIContext) types.AIContext {
	ctx, span := otel.Tracer("AIContextAssembler").Start(ctx, "Assemble")
	defer span.End()
	span.SetAttributes(attribute.Bool("user.known", in.UserID != ""))

	l := a.logger.With(slog.String("method", "Assemble"), slog.String("userID", in.UserID))
	out := in.Clone()

	if out.CurrentGeolocation != nil && !out.CurrentGeolocation.Valid() {
		l.WarnContext(ctx, "Dropping out-of-range geolocation",
			slog.Float64("lat", out.CurrentGeolocation.Latitude),
			slog.Float64("lon", out.CurrentGeolocation.Longitude))
		out.CurrentGeolocation = nil
	}

	if len(out.ConversationHistory) == 0 && out.SessionID != "" && a.history != nil {
		turns, err := a.history.Recent(ctx, out.SessionID, a.maxHistory)
		if err != nil {
			l.WarnContext(ctx, "Failed to load conversation history", slog.Any("error", err))
		} else {
			out.ConversationHistory = turns
		}
	}
	if n := len(out.ConversationHistory); n > a.maxHistory {
		out.ConversationHistory = append([]types.ConversationTurn(nil), out.ConversationHistory[n-a.maxHistory:]...)
	}

	if out.UserID != "" && a.repo != nil {
		a.enrich(ctx, l, &out)
	}

	if out.UserPreferences.Language == "" {
		out.UserPreferences.Language = DefaultLanguage
	}
	if out.UserPreferences.Currency == "" {
		out.UserPreferences.Currency = DefaultCurrency
	}
	out.UserPreferences.Categories = NormalizeCategories(out.UserPreferences.Categories)
	return out
}

func (a *Assembler) enrich(ctx context.Context, l *slog.Logger, out *types.AIContext) {
	var (
		prefs    *StoredPreferences
		bookings []types.Booking
		wishlist []types.WishlistItem
		reviews  []types.Review
		messages int
	)

	g, gctx := errgroup.WithContext(ctx)
	skip := func(what string, err error) error {
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			l.WarnContext(gctx, "Context enrichment failed", slog.String("source", what), slog.Any("error", err))
		}
		return nil
	}
	g.Go(func() error {
		var err error
		prefs, err = a.repo.FindUserPreferences(gctx, out.UserID)
		return skip("preferences", err)
	})
	g.Go(func() error {
		var err error
		bookings, err = a.repo.FindUserBookings(gctx, out.UserID, activityLimit)
		return skip("bookings", err)
	})
	g.Go(func() error {
		var err error
		wishlist, err = a.repo.FindUserWishlist(gctx, out.UserID, activityLimit)
		return skip("wishlist", err)
	})
	g.Go(func() error {
		var err error
		reviews, err = a.repo.FindUserReviews(gctx, out.UserID, activityLimit)
		return skip("reviews", err)
	})
	g.Go(func() error {
		var err error
		messages, err = a.repo.CountUserMessages(gctx, out.UserID)
		return skip("messages", err)
	})
	_ = g.Wait()

	if prefs != nil {
		if out.UserPreferences.Language == "" {
			out.UserPreferences.Language = prefs.Language
		}
		if out.UserPreferences.Currency == "" {
			out.UserPreferences.Currency = prefs.Currency
		}
		if len(out.UserPreferences.Categories) == 0 {
			out.UserPreferences.Categories = append([]string(nil), prefs.Categories...)
		}
		if _, ok := out.PreferredLocation(); !ok && len(prefs.PreferredLocations) > 0 {
			out.UserProfile = &types.UserProfile{PreferredLocations: append([]string(nil), prefs.PreferredLocations...)}
		}
	}

	if bookings == nil && wishlist == nil && reviews == nil && messages == 0 {
		return
	}
	out.Activity = &types.UserActivity{
		Bookings:     bookings,
		Wishlist:     wishlist,
		Reviews:      reviews,
		MessageCount: messages,
	}
}

// NormalizeCategories trims, lowercases, dedupes and sorts categories.
func NormalizeCategories(categories []string) []string {
	if len(categories) == 0 {
		return categories
	}
	seen := make(map[string]struct{}, len(categories))
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
