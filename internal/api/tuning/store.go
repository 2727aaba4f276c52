// Package tuning holds the live behavior parameters that the improvement loop
// publishes and the responder and recommendation scorer read.
package tuning

import (
	"sync/atomic"
	"time"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

// Store is an atomically swapped snapshot. Readers always see a complete
// version; Publish never blocks them.
type Store struct {
	current atomic.Pointer[types.Tuning]
}

func NewStore(weights types.RecommendationWeights) *Store {
	s := &Store{}
	s.current.Store(&types.Tuning{
		Version:         0,
		UpdatedAt:       time.Now().UTC(),
		TemplateWeights: map[string]float64{},
		Recommendation:  weights,
	})
	return s
}

// Load returns a copy of the current snapshot.
func (s *Store) Load() types.Tuning {
	return s.current.Load().Clone()
}

// Version is the version of the current snapshot.
func (s *Store) Version() int64 {
	return s.current.Load().Version
}

// Publish swaps in t. Callers own version numbering.
func (s *Store) Publish(t types.Tuning) {
	c := t.Clone()
	if c.TemplateWeights == nil {
		c.TemplateWeights = map[string]float64{}
	}
	s.current.Store(&c)
}
