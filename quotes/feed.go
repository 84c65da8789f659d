package quotes

import (
	"context"
	"fmt"
	"sync"

	"stocks-trader/models"
)

// StaticFeed serves observations set by hand, for tests and manual price
// injection from the command line.
type StaticFeed struct {
	mu     sync.RWMutex
	quotes map[string]Observation
}

func NewStaticFeed(obs ...Observation) *StaticFeed {
	f := &StaticFeed{quotes: make(map[string]Observation, len(obs))}
	for _, o := range obs {
		f.Set(o)
	}
	return f
}

func (f *StaticFeed) Set(obs Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[obs.Code] = obs
}

func (f *StaticFeed) Quote(_ context.Context, code string) (Observation, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	obs, ok := f.quotes[code]
	if !ok {
		return Observation{}, fmt.Errorf("quote %s: %w", code, models.ErrNotFound)
	}
	return obs, nil
}
