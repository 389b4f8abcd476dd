package worldmap

import (
	"context"
	"time"

	"github.com/ledgerquest/ledgerquest/pkg/cache"
	"github.com/ledgerquest/ledgerquest/pkg/log"
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
)

const catalogCacheKey = "worldmap:catalog"

// Gate evaluates city-unlock eligibility from an avatar's progression
// record against the catalog.
type Gate struct {
	catalog    *Catalog
	cache      cache.Cache
	catalogTTL time.Duration
}

type NewGateOptions struct {
	Catalog    *Catalog
	Cache      cache.Cache
	CatalogTTL time.Duration
}

func NewGate(opts NewGateOptions) *Gate {
	return &Gate{
		catalog:    opts.Catalog,
		cache:      opts.Cache,
		catalogTTL: opts.CatalogTTL,
	}
}

// IsUnlocked reports whether a city is open to the avatar. City 1 is
// always unlocked; city N>1 requires the previous city's boss defeated,
// which the avatar's CurrentCity cursor encodes.
func (g *Gate) IsUnlocked(avatar *rpgtypes.Avatar, cityNumber int) bool {
	if cityNumber < 1 || cityNumber > g.catalog.Size() {
		return false
	}
	if cityNumber == 1 {
		return true
	}
	return avatar.CurrentCity >= cityNumber
}

// Catalog returns the catalog backing the gate.
func (g *Gate) Catalog() *Catalog {
	return g.catalog
}

// CityStatus is a catalog entry annotated with per-avatar unlock state.
type CityStatus struct {
	City
	Unlocked bool `json:"unlocked"`
}

// Annotate returns the city list with unlock status for the avatar.
// The catalog itself is served read-through; unlock status is always
// computed live.
func (g *Gate) Annotate(ctx context.Context, avatar *rpgtypes.Avatar) []CityStatus {
	cities := g.cachedCities(ctx)
	statuses := make([]CityStatus, len(cities))
	for i, city := range cities {
		statuses[i] = CityStatus{
			City:     city,
			Unlocked: g.IsUnlocked(avatar, city.Number),
		}
	}
	return statuses
}

// cachedCities serves the catalog through the cache with a long TTL.
// The catalog is deployment-static, so any cache failure just falls
// back to the in-process copy.
func (g *Gate) cachedCities(ctx context.Context) []City {
	data, err := g.cache.Get(ctx, catalogCacheKey)
	if err == nil {
		var cities []City
		if err := cache.DecodeSnapshot(data, &cities); err == nil {
			return cities
		}
		log.Debug("Failed to decode cached catalog, falling back to source")
	}

	cities := g.catalog.Cities()
	encoded, err := cache.EncodeSnapshot(cities)
	if err != nil {
		log.Warn("Failed to encode catalog for cache: %v", err)
		return cities
	}
	if err := g.cache.Set(ctx, catalogCacheKey, encoded, g.catalogTTL); err != nil {
		log.Debug("Failed to cache catalog: %v", err)
	}
	return cities
}
