// Package intent classifies raw chat messages into a coarse intent with
// ordered keyword rules. Earlier rules win.
package intent

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

// Categories are the rental categories the marketplace knows about. A
// category name in a message counts as a search signal.
var Categories = []string{
	"camera", "car", "bike", "bicycle", "motorcycle", "scooter", "tools",
	"electronics", "furniture", "appliances", "camping", "sports",
	"party", "costume", "books", "instruments", "gaming", "drone",
}

var (
	greetingPattern = regexp.MustCompile(`^(hi|hello|hey|good (morning|afternoon|evening))\b`)
	rentPattern     = regexp.MustCompile(`\brent(al|als|ing)?\b`)
	ownRentals      = regexp.MustCompile(`\bmy rentals?\b`)
)

type rule struct {
	intent   types.Intent
	phrases  []string
	patterns []*regexp.Regexp
	// except is removed from the text before this rule's patterns run.
	except *regexp.Regexp
}

// Phrases also match their plural with a trailing "s".
var rules = []rule{
	{intent: types.IntentGreeting, patterns: []*regexp.Regexp{greetingPattern}},
	{
		intent:   types.IntentSearch,
		phrases:  append([]string{"find", "search", "looking for", "borrow", "available", "near me"}, Categories...),
		patterns: []*regexp.Regexp{rentPattern},
		except:   ownRentals,
	},
	{intent: types.IntentListingManagement, phrases: []string{"list my", "my items", "my listing", "post my", "edit listing"}},
	{intent: types.IntentBookingInquiry, phrases: []string{"booking", "reservation", "my rental", "reserve"}},
}

// Classify maps a message to exactly one intent, defaulting to Unknown.
func Classify(message string) types.Intent {
	text := Normalize(message)
	if text == "" {
		return types.IntentUnknown
	}
	padded := " " + text + " "
	for _, r := range rules {
		subject := text
		if r.except != nil {
			subject = r.except.ReplaceAllString(text, " ")
		}
		for _, p := range r.patterns {
			if p.MatchString(subject) {
				return r.intent
			}
		}
		for _, phrase := range r.phrases {
			if containsPhrase(padded, phrase) {
				return r.intent
			}
		}
	}
	return types.IntentUnknown
}

func containsPhrase(padded, phrase string) bool {
	return strings.Contains(padded, " "+phrase+" ") || strings.Contains(padded, " "+phrase+"s ")
}

// DetectCategory returns the first known category mentioned in message.
func DetectCategory(message string) string {
	padded := " " + Normalize(message) + " "
	for _, c := range Categories {
		if containsPhrase(padded, c) {
			return c
		}
	}
	return ""
}

// Normalize lowercases, turns punctuation into spaces and collapses runs of
// whitespace.
func Normalize(message string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		if r == '\'' {
			return -1
		}
		return ' '
	}, message)
	return strings.Join(strings.Fields(mapped), " ")
}
