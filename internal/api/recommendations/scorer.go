// Package recommendations ranks marketplace listings for a user from their
// bookings, wishlist and reviews.
package recommendations

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

const defaultHalfLifeDays = 30

// Signals is the user activity the scorer reasons over.
type Signals struct {
	Bookings []types.Booking
	Wishlist []types.WishlistItem
	Reviews  []types.Review
}

// Empty reports whether there is nothing to personalize on.
func (s Signals) Empty() bool {
	return len(s.Bookings) == 0 && len(s.Wishlist) == 0 && len(s.Reviews) == 0
}

// Categories returns every category the user has touched, sorted.
func (s Signals) Categories() []string {
	set := map[string]struct{}{}
	add := func(c string) {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			set[c] = struct{}{}
		}
	}
	for _, b := range s.Bookings {
		add(b.Category)
	}
	for _, w := range s.Wishlist {
		add(w.Category)
	}
	for _, r := range s.Reviews {
		add(r.Category)
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type profile struct {
	wishlist         map[string]bool
	booked           map[string]bool
	categoryBookings map[string]int
	sentiment        map[string]float64
}

func buildProfile(s Signals) profile {
	p := profile{
		wishlist:         make(map[string]bool, len(s.Wishlist)),
		booked:           make(map[string]bool, len(s.Bookings)),
		categoryBookings: make(map[string]int),
		sentiment:        make(map[string]float64),
	}
	for _, w := range s.Wishlist {
		p.wishlist[w.ListingID] = true
	}
	for _, b := range s.Bookings {
		p.booked[b.ListingID] = true
		p.categoryBookings[strings.ToLower(b.Category)]++
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for _, r := range s.Reviews {
		if r.Rating < 1 || r.Rating > 5 {
			continue
		}
		c := strings.ToLower(r.Category)
		sums[c] += float64(r.Rating-3) / 2
		counts[c]++
	}
	for c, sum := range sums {
		p.sentiment[c] = sum / float64(counts[c])
	}
	return p
}

// Score ranks candidates by descending score. Ties go to the newer listing,
// then to the lower ID so the order is total. Duplicate IDs are scored once.
func Score(signals Signals, candidates []types.Listing, w types.RecommendationWeights, now time.Time) []types.RecommendationCandidate {
	if signals.Empty() || len(candidates) == 0 {
		return []types.RecommendationCandidate{}
	}

	halfLife := w.RecencyHalfLifeDays
	if halfLife <= 0 {
		halfLife = defaultHalfLifeDays
	}
	p := buildProfile(signals)

	seen := make(map[string]struct{}, len(candidates))
	out := make([]types.RecommendationCandidate, 0, len(candidates))
	for _, l := range candidates {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}

		category := strings.ToLower(l.Category)
		score := 0.0
		if p.wishlist[l.ID] {
			score += w.Wishlist
		}
		score += w.CategoryBooking * float64(p.categoryBookings[category])
		score += w.Rating * clamp(l.AverageRating/5, 0, 1)
		score += w.ReviewSentiment * p.sentiment[category]

		ageDays := now.Sub(l.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		score += w.Recency * math.Pow(0.5, ageDays/halfLife)

		if p.booked[l.ID] {
			score -= w.BookedPenalty
		}
		out = append(out, types.RecommendationCandidate{Listing: l, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Listing.CreatedAt.Equal(b.Listing.CreatedAt) {
			return a.Listing.CreatedAt.After(b.Listing.CreatedAt)
		}
		return a.Listing.ID < b.Listing.ID
	})
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
