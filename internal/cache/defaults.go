package cache

import (
	"fmt"
	"time"
)

// Names of the caches every deployment registers by default.
const (
	PlayerDataCache = "player_data"
	MarketCache     = "market_data"
	ItemCache       = "item_data"
	PermissionCache = "permission_data"
	VillagerCache   = "villager_data"
)

// Spec describes a cache to create and register by name.
type Spec struct {
	Name       string
	TTL        time.Duration
	Shared     bool
	MaxEntries int
}

// DefaultSpecs returns the default cache catalogue. Every default cache is
// Shared because the registry sweep touches them from its own goroutine.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: PlayerDataCache, TTL: 5 * time.Minute, Shared: true},
		{Name: MarketCache, TTL: 2 * time.Minute, Shared: true},
		{Name: ItemCache, TTL: 10 * time.Minute, Shared: true},
		{Name: PermissionCache, TTL: time.Minute, Shared: true},
		{Name: VillagerCache, TTL: 3 * time.Minute, Shared: true},
	}
}

// RegisterSpecs creates and registers a string-keyed cache per Spec.
// Consumers retrieve them with Lookup[string, any].
func (r *Registry) RegisterSpecs(specs []Spec) error {
	for _, s := range specs {
		mode := Exclusive
		if s.Shared {
			mode = Shared
		}
		c, err := New[string, any](s.TTL, mode, WithMaxEntries(s.MaxEntries))
		if err != nil {
			return fmt.Errorf("cache %s: %w", s.Name, err)
		}
		if err := r.Register(s.Name, c); err != nil {
			return err
		}
	}
	return nil
}
