package types

import (
	"fmt"
	"time"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ConversationTurn is one entry of the conversation history. Order matters.
type ConversationTurn struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

type UserPreferences struct {
	Language   string   `json:"language"`
	Currency   string   `json:"currency"`
	Categories []string `json:"categories"` // treated as a set
}

type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinates are inside the WGS84 range.
func (g Geolocation) Valid() bool {
	return g.Latitude >= -90 && g.Latitude <= 90 && g.Longitude >= -180 && g.Longitude <= 180
}

type UserProfile struct {
	PreferredLocations []string `json:"preferred_locations"`
}

// UserActivity carries the enrichments the context assembler fetched for a
// known user. It is nil when the user is anonymous or nothing was fetched.
type UserActivity struct {
	Bookings     []Booking      `json:"bookings,omitempty"`
	Wishlist     []WishlistItem `json:"wishlist,omitempty"`
	Reviews      []Review       `json:"reviews,omitempty"`
	MessageCount int            `json:"message_count"`
}

// AIContext is the per-request bundle informing a single assistant call.
// Services never modify a caller's AIContext; use Clone to derive one.
type AIContext struct {
	UserID              string             `json:"user_id,omitempty"`
	SessionID           string             `json:"session_id,omitempty"`
	ConversationHistory []ConversationTurn `json:"conversation_history,omitempty"`
	UserPreferences     UserPreferences    `json:"user_preferences"`
	CurrentGeolocation  *Geolocation       `json:"current_geolocation,omitempty"`
	UserProfile         *UserProfile       `json:"user_profile,omitempty"`
	Activity            *UserActivity      `json:"activity,omitempty"`
}

// Clone returns a deep copy of c.
func (c AIContext) Clone() AIContext {
	out := c
	if c.ConversationHistory != nil {
		out.ConversationHistory = append([]ConversationTurn(nil), c.ConversationHistory...)
	}
	if c.UserPreferences.Categories != nil {
		out.UserPreferences.Categories = append([]string(nil), c.UserPreferences.Categories...)
	}
	if c.CurrentGeolocation != nil {
		g := *c.CurrentGeolocation
		out.CurrentGeolocation = &g
	}
	if c.UserProfile != nil {
		p := UserProfile{}
		if c.UserProfile.PreferredLocations != nil {
			p.PreferredLocations = append([]string(nil), c.UserProfile.PreferredLocations...)
		}
		out.UserProfile = &p
	}
	if c.Activity != nil {
		a := UserActivity{MessageCount: c.Activity.MessageCount}
		a.Bookings = append([]Booking(nil), c.Activity.Bookings...)
		a.Wishlist = append([]WishlistItem(nil), c.Activity.Wishlist...)
		a.Reviews = append([]Review(nil), c.Activity.Reviews...)
		out.Activity = &a
	}
	return out
}

// Validate checks caller-supplied fields. Errors wrap ErrValidation.
func (c AIContext) Validate() error {
	for i, turn := range c.ConversationHistory {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return fmt.Errorf("%w: conversation_history[%d] has invalid role %q", ErrValidation, i, turn.Role)
		}
	}
	if c.CurrentGeolocation != nil && !c.CurrentGeolocation.Valid() {
		return fmt.Errorf("%w: current_geolocation out of range", ErrValidation)
	}
	return nil
}

// LastUserTurn returns the content of the latest user turn, if any.
func (c AIContext) LastUserTurn() (string, bool) {
	for i := len(c.ConversationHistory) - 1; i >= 0; i-- {
		if c.ConversationHistory[i].Role == RoleUser {
			return c.ConversationHistory[i].Content, true
		}
	}
	return "", false
}

// PreferredLocation returns the first preferred location from the profile.
func (c AIContext) PreferredLocation() (string, bool) {
	if c.UserProfile == nil {
		return "", false
	}
	for _, loc := range c.UserProfile.PreferredLocations {
		if loc != "" {
			return loc, true
		}
	}
	return "", false
}

type Booking struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
}

type WishlistItem struct {
	ListingID string    `json:"listing_id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	AddedAt   time.Time `json:"added_at"`
}

type Review struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	Category  string    `json:"category"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Listing struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id,omitempty"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Location      string    `json:"location"`
	PricePerDay   float64   `json:"price_per_day"`
	AverageRating float64   `json:"average_rating"`
	ReviewCount   int       `json:"review_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecommendationCandidate is a listing with its computed score. Never persisted.
type RecommendationCandidate struct {
	Listing Listing `json:"listing"`
	Score   float64 `json:"score"`
}
