package suggestions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const (
	SuggestionBookingReminder = "booking_reminder"
	SuggestionWishlist        = "wishlist"
	SuggestionDiscover        = "discover"
)

// GetProactiveSuggestions builds cards shown without a user query: rentals
// starting soon, a wishlist nudge and nearby areas to explore.
func (e *Engine) GetProactiveSuggestions(ctx context.Context, userID string, c types.AIContext) (out []types.Suggestion) {
	l := e.logger.With(slog.String("method", "GetProactiveSuggestions"), slog.String("userID", userID))
	defer func() {
		if r := recover(); r != nil {
			l.ErrorContext(ctx, "Proactive suggestion generation failed", slog.Any("panic", r))
			out = []types.Suggestion{}
		}
	}()

	out = []types.Suggestion{}
	now := e.now()

	if c.Activity != nil {
		upcoming := make([]types.Booking, 0)
		for _, b := range c.Activity.Bookings {
			if strings.EqualFold(b.Status, "cancelled") || strings.EqualFold(b.Status, "canceled") {
				continue
			}
			if b.StartDate.After(now) && b.StartDate.Sub(now) <= e.opts.UpcomingWindow {
				upcoming = append(upcoming, b)
			}
		}
		sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].StartDate.Before(upcoming[j].StartDate) })
		for _, b := range upcoming {
			title := b.Title
			if title == "" {
				title = "your " + b.Category + " rental"
			}
			out = append(out, types.Suggestion{
				Type:    SuggestionBookingReminder,
				Title:   "Upcoming rental",
				Message: fmt.Sprintf("%s starts on %s. Check pickup details with the owner.", title, b.StartDate.Format("Mon, Jan 2 15:04")),
				Action:  types.NavigateAction{Path: "/dashboard/rentals"},
			})
		}

		if n := len(c.Activity.Wishlist); n > 0 {
			msg := fmt.Sprintf("You have %d items in your wishlist. Book them before someone else does.", n)
			if n == 1 {
				msg = fmt.Sprintf("%s is still in your wishlist. Book it before someone else does.", orDefault(c.Activity.Wishlist[0].Title, "An item"))
			}
			out = append(out, types.Suggestion{
				Type:    SuggestionWishlist,
				Title:   "Still interested?",
				Message: msg,
				Action:  types.NavigateAction{Path: "/wishlist"},
			})
		}
	}

	place, near := e.resolvePlace(ctx, l, c)
	if len(near) > 0 {
		if len(near) > 3 {
			near = near[:3]
		}
		out = append(out, types.Suggestion{
			Type:    SuggestionDiscover,
			Title:   "Explore nearby",
			Message: fmt.Sprintf("Rentals are available around %s, including %s.", place, strings.Join(near, ", ")),
			Action:  types.SearchAction{Location: place},
		})
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
