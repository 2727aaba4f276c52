package responder

import "github.com/FACorreiaa/go-ren-assistant/internal/types"

// Template is one canned reply. Placeholders: {location}, {category}.
type Template struct {
	ID     string
	Intent types.Intent
	Text   string
}

const (
	ClarifyTemplateID  = "clarify.empty"
	fallbackTemplateID = "unknown.offline"
)

var templates = []Template{
	{ID: "greeting.warm", Intent: types.IntentGreeting, Text: "Hi there! I'm REN, your rental assistant. I can help you find items to rent around {location}, manage your listings, or check on your bookings."},
	{ID: "greeting.brief", Intent: types.IntentGreeting, Text: "Hello! What would you like to rent today?"},

	{ID: "search.nearby", Intent: types.IntentSearch, Text: "Let me look for {category} rentals near {location}. You can narrow things down by price or dates from the search page."},
	{ID: "search.tips", Intent: types.IntentSearch, Text: "Searching for {category}? Try adding dates and a budget so I can show listings around {location} that are actually available."},

	{ID: "listing.manage", Intent: types.IntentListingManagement, Text: "You can add, edit or pause your listings from your dashboard. Want me to take you there?"},
	{ID: "listing.tips", Intent: types.IntentListingManagement, Text: "Listings with clear photos and a fair daily rate rent out faster. Your dashboard has everything you need to update them."},

	{ID: "booking.status", Intent: types.IntentBookingInquiry, Text: "Your rentals and their status are on the rentals page. I can take you there now."},
	{ID: "booking.help", Intent: types.IntentBookingInquiry, Text: "Need to change or cancel a booking? Open the rental from your dashboard and message the owner directly."},

	{ID: fallbackTemplateID, Intent: types.IntentUnknown, Text: "I'm having trouble connecting right now, but I can still help you search for rentals, manage your listings, or check your bookings."},
	{ID: "unknown.redirect", Intent: types.IntentUnknown, Text: "I'm having trouble connecting to my full assistant. Try asking me to find something to rent near {location}."},
}

var clarifyTemplate = Template{
	ID:     ClarifyTemplateID,
	Intent: types.IntentUnknown,
	Text:   "I didn't catch that. What are you looking to rent?",
}

var intentSuggestions = map[types.Intent][]string{
	types.IntentGreeting: {
		"Find rentals near me",
		"How do I list an item?",
		"Check my bookings",
	},
	types.IntentSearch: {
		"Show cheapest options",
		"Filter by availability",
		"Show top rated listings",
	},
	types.IntentListingManagement: {
		"Create a new listing",
		"Update my prices",
		"View my listings",
	},
	types.IntentBookingInquiry: {
		"View my rentals",
		"Contact the owner",
		"Extend a rental",
	},
	types.IntentUnknown: {
		"Find rentals near me",
		"View my listings",
		"Check my bookings",
	},
}
