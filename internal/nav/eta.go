package nav

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// FallbackSpeedMps is the fixed average-speed assumption (30 km/h) used
// whenever no routing provider is reachable.
const FallbackSpeedMps = 30.0 / 3.6

// ETAClient estimates travel time between two points.
type ETAClient interface {
	EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error)
}

// Clients is what the matcher needs: an ETA that always answers.
type Clients interface {
	ETA(ctx context.Context, from, to models.Coord) time.Duration
}

// NaiveETA is straight-line distance over the fallback speed.
func NaiveETA(from, to models.Coord) time.Duration {
	secs := geo.Distance(from, to) / FallbackSpeedMps
	return time.Duration(secs * float64(time.Second))
}

// ETAService consults the cache, then the client, then degrades to the
// naive estimate. It never returns an error.
type ETAService struct {
	Client ETAClient // optional
	Cache  *Cache    // optional
}

func (s *ETAService) ETA(ctx context.Context, from, to models.Coord) time.Duration {
	if s.Cache != nil {
		if v, ok := s.Cache.Get(from, to); ok {
			return time.Duration(v * float64(time.Second))
		}
	}
	if s.Client != nil {
		if v, err := s.Client.EstimateSeconds(ctx, from, to); err == nil {
			if s.Cache != nil {
				s.Cache.Set(from, to, v)
			}
			return time.Duration(v * float64(time.Second))
		}
	}
	return NaiveETA(from, to)
}

// Cache is a tiny in-memory TTL cache for ETA lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

func (c *Cache) Set(a, b models.Coord, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}
