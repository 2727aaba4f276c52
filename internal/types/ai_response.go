package types

import (
	"encoding/json"
	"fmt"
)

type Intent string

const (
	IntentGreeting          Intent = "greeting"
	IntentSearch            Intent = "search"
	IntentListingManagement Intent = "listing_management"
	IntentBookingInquiry    Intent = "booking_inquiry"
	IntentUnknown           Intent = "unknown"
)

type ActionType string

const (
	ActionNavigate ActionType = "navigate"
	ActionSearch   ActionType = "search"
	ActionBook     ActionType = "book"
	ActionNone     ActionType = "none"
)

// Action is a closed set of structured follow-ups attached to a response.
// Only the variants declared in this package implement it.
type Action interface {
	Type() ActionType
	isAction()
}

type NavigateAction struct {
	Path string `json:"path"`
}

type SearchAction struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Location string `json:"location,omitempty"`
}

type BookAction struct {
	ListingID string `json:"listing_id"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type NoneAction struct{}

func (NavigateAction) Type() ActionType { return ActionNavigate }
func (SearchAction) Type() ActionType   { return ActionSearch }
func (BookAction) Type() ActionType     { return ActionBook }
func (NoneAction) Type() ActionType     { return ActionNone }

func (NavigateAction) isAction() {}
func (SearchAction) isAction()   {}
func (BookAction) isAction()     {}
func (NoneAction) isAction()     {}

type actionEnvelope struct {
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalAction encodes an action as {"type": ..., "payload": {...}}.
func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionEnvelope{Type: a.Type(), Payload: payload})
}

// UnmarshalAction decodes the envelope produced by MarshalAction.
func UnmarshalAction(data []byte) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode action envelope: %w", err)
	}
	decode := func(dst any) error {
		if len(env.Payload) == 0 || string(env.Payload) == "null" {
			return nil
		}
		return json.Unmarshal(env.Payload, dst)
	}
	switch env.Type {
	case ActionNavigate:
		var a NavigateAction
		if err := decode(&a); err != nil {
			return nil, fmt.Errorf("decode navigate payload: %w", err)
		}
		if a.Path == "" {
			return nil, fmt.Errorf("navigate action requires a path")
		}
		return a, nil
	case ActionSearch:
		var a SearchAction
		if err := decode(&a); err != nil {
			return nil, fmt.Errorf("decode search payload: %w", err)
		}
		return a, nil
	case ActionBook:
		var a BookAction
		if err := decode(&a); err != nil {
			return nil, fmt.Errorf("decode book payload: %w", err)
		}
		if a.ListingID == "" {
			return nil, fmt.Errorf("book action requires a listing_id")
		}
		return a, nil
	case ActionNone, "":
		return NoneAction{}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", env.Type)
	}
}

type ResponseTier string

const (
	TierRemote    ResponseTier = "remote"
	TierLocal     ResponseTier = "local"
	TierRuleBased ResponseTier = "rule_based"
)

// AIResponse is what the assistant returns for a message. Text is never empty.
type AIResponse struct {
	MessageID   string       `json:"message_id"`
	Text        string       `json:"text"`
	Suggestions []string     `json:"suggestions"`
	Action      Action       `json:"-"`
	Tier        ResponseTier `json:"tier"`
	Intent      Intent       `json:"intent,omitempty"`
	TemplateID  string       `json:"template_id,omitempty"`
}

func (r AIResponse) MarshalJSON() ([]byte, error) {
	type alias AIResponse
	action, err := MarshalAction(r.Action)
	if err != nil {
		return nil, err
	}
	suggestions := r.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	a := alias(r)
	a.Suggestions = suggestions
	return json.Marshal(struct {
		alias
		Action json.RawMessage `json:"action"`
	}{alias: a, Action: action})
}

func (r *AIResponse) UnmarshalJSON(data []byte) error {
	type alias AIResponse
	var raw struct {
		alias
		Action json.RawMessage `json:"action"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = AIResponse(raw.alias)
	if len(raw.Action) > 0 && string(raw.Action) != "null" {
		action, err := UnmarshalAction(raw.Action)
		if err != nil {
			return err
		}
		r.Action = action
	}
	return nil
}

// Suggestion is a typed proactive suggestion shown without a user query.
type Suggestion struct {
	Type    string `json:"type"` // booking_reminder, wishlist, discover
	Title   string `json:"title"`
	Message string `json:"message"`
	Action  Action `json:"-"`
}

func (s Suggestion) MarshalJSON() ([]byte, error) {
	type alias Suggestion
	action, err := MarshalAction(s.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Action json.RawMessage `json:"action"`
	}{alias: alias(s), Action: action})
}
