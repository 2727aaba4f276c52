package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

// Reply is a parsed provider answer.
type Reply struct {
	Text   string
	Action types.Action
}

type structuredReply struct {
	Text   string          `json:"text"`
	Action json.RawMessage `json:"action"`
}

// ParseReply accepts plain text or the JSON shape described in the system
// prompt. A JSON-looking reply that does not decode, or any empty reply, is
// ErrMalformedReply.
func ParseReply(raw string) (Reply, error) {
	cleaned := cleanJSONResponse(raw)
	if cleaned == "" {
		return Reply{}, fmt.Errorf("%w: empty reply", ErrMalformedReply)
	}
	if !strings.HasPrefix(cleaned, "{") {
		return Reply{Text: cleaned, Action: types.NoneAction{}}, nil
	}

	var sr structuredReply
	if err := json.Unmarshal([]byte(cleaned), &sr); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	text := strings.TrimSpace(sr.Text)
	if text == "" {
		return Reply{}, fmt.Errorf("%w: missing text", ErrMalformedReply)
	}

	var action types.Action = types.NoneAction{}
	if len(sr.Action) > 0 && string(sr.Action) != "null" {
		a, err := types.UnmarshalAction(sr.Action)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
		}
		action = a
	}
	return Reply{Text: text, Action: action}, nil
}

// cleanJSONResponse strips markdown fences and surrounding prose from a model
// reply that contains a JSON object.
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	firstBrace := strings.Index(response, "{")
	if firstBrace != 0 {
		return response
	}
	lastBrace := strings.LastIndex(response, "}")
	if lastBrace <= firstBrace {
		return response
	}
	return strings.TrimSpace(response[firstBrace : lastBrace+1])
}
