package tuning

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FACorreiaa/go-ren-assistant/internal/types"
)

func TestStore_LoadReturnsCopy(t *testing.T) {
	s := NewStore(types.RecommendationWeights{Wishlist: 3})

	snap := s.Load()
	snap.TemplateWeights["greeting.warm"] = 9
	snap.Recommendation.Wishlist = 0

	again := s.Load()
	assert.Empty(t, again.TemplateWeights)
	assert.Equal(t, 3.0, again.Recommendation.Wishlist)
	assert.Equal(t, 1.0, again.TemplateWeight("greeting.warm"))
}

func TestStore_Publish(t *testing.T) {
	s := NewStore(types.RecommendationWeights{})
	next := types.Tuning{Version: 4, TemplateWeights: map[string]float64{"search.nearby": 1.5}}
	s.Publish(next)

	next.TemplateWeights["search.nearby"] = 0.1

	assert.Equal(t, int64(4), s.Version())
	assert.Equal(t, 1.5, s.Load().TemplateWeight("search.nearby"))
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore(types.RecommendationWeights{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(v int64) {
			defer wg.Done()
			s.Publish(types.Tuning{Version: v, TemplateWeights: map[string]float64{"a": float64(v)}})
		}(int64(i))
		go func() {
			defer wg.Done()
			snap := s.Load()
			assert.Equal(t, float64(snap.Version), snap.TemplateWeights["a"])
		}()
	}
	wg.Wait()
}
