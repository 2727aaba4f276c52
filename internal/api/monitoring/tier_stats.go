package monitoring

import (
	"sync"
	"time"

	"github.com/FACorreiaa/go-ren-assistant/internal/api/providers"
	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

type tierCounter struct {
	enabled       bool
	attempts      int64
	failures      int64
	byClass       map[string]int64
	totalLatency  time.Duration
	lastError     string
	lastFailureAt time.Time
}

// TierStats accumulates per-tier outcomes reported by the response generator.
type TierStats struct {
	mu    sync.Mutex
	order []types.ResponseTier
	tiers map[types.ResponseTier]*tierCounter
	now   func() time.Time
}

func NewTierStats() *TierStats {
	return &TierStats{tiers: map[types.ResponseTier]*tierCounter{}, now: time.Now}
}

// Register declares a tier so it shows up in reports before its first call.
func (s *TierStats) Register(tier types.ResponseTier, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter(tier).enabled = enabled
}

func (s *TierStats) counter(tier types.ResponseTier) *tierCounter {
	c, ok := s.tiers[tier]
	if !ok {
		c = &tierCounter{enabled: true, byClass: map[string]int64{}}
		s.tiers[tier] = c
		s.order = append(s.order, tier)
	}
	return c
}

// ObserveTier records one attempt. A nil err is a success.
func (s *TierStats) ObserveTier(tier types.ResponseTier, elapsed time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counter(tier)
	c.attempts++
	c.totalLatency += elapsed
	if err != nil {
		c.failures++
		c.byClass[providers.ErrorClass(err)]++
		c.lastError = err.Error()
		c.lastFailureAt = s.now().UTC()
	}
}

// Snapshot returns the tiers in registration order.
func (s *TierStats) Snapshot() []types.TierHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TierHealth, 0, len(s.order))
	for _, tier := range s.order {
		c := s.tiers[tier]
		h := types.TierHealth{
			Name:      string(tier),
			Enabled:   c.enabled,
			Attempts:  c.attempts,
			Failures:  c.failures,
			LastError: c.lastError,
		}
		if len(c.byClass) > 0 {
			h.FailuresByClass = make(map[string]int64, len(c.byClass))
			for k, v := range c.byClass {
				h.FailuresByClass[k] = v
			}
		}
		if c.attempts > 0 {
			h.AverageLatencyMs = float64(c.totalLatency.Milliseconds()) / float64(c.attempts)
		}
		if !c.lastFailureAt.IsZero() {
			at := c.lastFailureAt
			h.LastFailureAt = &at
		}
		out = append(out, h)
	}
	return out
}

// FailureRate is failures/attempts, zero without attempts.
func FailureRate(h types.TierHealth) float64 {
	if h.Attempts == 0 {
		return 0
	}
	return float64(h.Failures) / float64(h.Attempts)
}
