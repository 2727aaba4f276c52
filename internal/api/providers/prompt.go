package providers

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

// Prompt is provider-neutral: each tier maps it onto its own message format.
type Prompt struct {
	System  string
	History []types.ConversationTurn
	Message string
}

const systemPreamble = `You are REN, the assistant of a peer-to-peer rental marketplace in the Philippines.
Help users find items to rent, manage their listings and follow up on bookings.
Keep answers short and friendly. Never invent listings, prices or booking details.

Reply with either plain text or a single JSON object:
{"text": "<reply>", "action": {"type": "navigate|search|book|none", "payload": {...}}}
navigate payload: {"path": "/dashboard/..."}; search payload: {"query": "...", "category": "...", "location": "..."}; book payload: {"listing_id": "..."}.`

// BuildPrompt assembles the system instruction from the context and keeps the
// last historyTurns turns of the conversation.
func BuildPrompt(message string, c types.AIContext, historyTurns int) Prompt {
	var sb strings.Builder
	sb.WriteString(systemPreamble)
	sb.WriteString("\n\nUser context:\n")
	fmt.Fprintf(&sb, "- language: %s\n", orDefault(c.UserPreferences.Language, "en"))
	fmt.Fprintf(&sb, "- currency: %s\n", orDefault(c.UserPreferences.Currency, "PHP"))
	if len(c.UserPreferences.Categories) > 0 {
		fmt.Fprintf(&sb, "- interested in: %s\n", strings.Join(c.UserPreferences.Categories, ", "))
	}
	if loc, ok := c.PreferredLocation(); ok {
		fmt.Fprintf(&sb, "- preferred location: %s\n", loc)
	}
	if g := c.CurrentGeolocation; g != nil {
		fmt.Fprintf(&sb, "- current coordinates: %.4f, %.4f\n", g.Latitude, g.Longitude)
	}
	if a := c.Activity; a != nil {
		fmt.Fprintf(&sb, "- bookings: %d, wishlist items: %d, reviews written: %d\n", len(a.Bookings), len(a.Wishlist), len(a.Reviews))
	}

	history := c.ConversationHistory
	if historyTurns <= 0 {
		history = nil
	} else if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}

	return Prompt{
		System:  sb.String(),
		History: append([]types.ConversationTurn(nil), history...),
		Message: strings.TrimSpace(message),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
