// Package providers adapts the network-bound assistant tiers: a remote
// Gemini model and a local OpenAI-compatible model server.
package providers

import (
	"context"
	"errors"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

var (
	// ErrProviderUnavailable covers network failures, timeouts and non-success
	// statuses from a tier. The assistant absorbs it and moves on.
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrMalformedReply      = errors.New("malformed provider reply")
)

// Tier is one network-bound response strategy.
type Tier interface {
	Name() types.ResponseTier
	Complete(ctx context.Context, p Prompt) (string, error)
}

// ErrorClass buckets a tier failure for logs and health stats.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrMalformedReply):
		return "malformed"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
