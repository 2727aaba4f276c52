// Package responder is the deterministic last tier of the assistant. It
// never calls out and never fails.
package responder

import (
	"strings"

	"github.com/FACorreiaa/go-ren-assistant/internal/api/intent"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

// Reply is what the rule-based tier produces for one message.
type Reply struct {
	Text        string
	TemplateID  string
	Intent      types.Intent
	Suggestions []string
	Action      types.Action
}

type Responder struct {
	defaultLocation string
}

func New(defaultLocation string) *Responder {
	if defaultLocation == "" {
		defaultLocation = "Manila"
	}
	return &Responder{defaultLocation: defaultLocation}
}

// Templates returns every template the responder can pick from.
func (r *Responder) Templates() []Template {
	return append([]Template(nil), templates...)
}

// Respond picks the best-weighted template for the intent, fills it in and
// attaches the per-intent suggestions and action.
func (r *Responder) Respond(message string, in types.Intent, c types.AIContext, t types.Tuning) Reply {
	tpl := pick(in, t)
	location := r.location(c)
	category := intent.DetectCategory(message)
	if category == "" && len(c.UserPreferences.Categories) > 0 {
		category = c.UserPreferences.Categories[0]
	}

	label := category
	if label == "" {
		label = "item"
	}
	text := strings.NewReplacer("{location}", location, "{category}", label).Replace(tpl.Text)

	return Reply{
		Text:        text,
		TemplateID:  tpl.ID,
		Intent:      in,
		Suggestions: Suggestions(in),
		Action:      actionFor(in, message, category, location),
	}
}

// Clarify is the reply for an empty message.
func (r *Responder) Clarify() Reply {
	return Reply{
		Text:        clarifyTemplate.Text,
		TemplateID:  clarifyTemplate.ID,
		Intent:      types.IntentUnknown,
		Suggestions: Suggestions(types.IntentUnknown),
		Action:      types.NoneAction{},
	}
}

// Suggestions returns a copy of the fixed suggestion set for an intent.
func Suggestions(in types.Intent) []string {
	set, ok := intentSuggestions[in]
	if !ok {
		set = intentSuggestions[types.IntentUnknown]
	}
	return append([]string(nil), set...)
}

func pick(in types.Intent, t types.Tuning) Template {
	var best Template
	bestWeight := -1.0
	for _, tpl := range templates {
		if tpl.Intent != in {
			continue
		}
		if w := t.TemplateWeight(tpl.ID); w > bestWeight {
			best, bestWeight = tpl, w
		}
	}
	if bestWeight < 0 {
		return pick(types.IntentUnknown, t)
	}
	return best
}

func (r *Responder) location(c types.AIContext) string {
	if loc, ok := c.PreferredLocation(); ok {
		return loc
	}
	return r.defaultLocation
}

func actionFor(in types.Intent, message, category, location string) types.Action {
	switch in {
	case types.IntentSearch:
		return types.SearchAction{Query: strings.TrimSpace(message), Category: category, Location: location}
	case types.IntentListingManagement:
		return types.NavigateAction{Path: "/dashboard/listings"}
	case types.IntentBookingInquiry:
		return types.NavigateAction{Path: "/dashboard/rentals"}
	default:
		return types.NoneAction{}
	}
}
