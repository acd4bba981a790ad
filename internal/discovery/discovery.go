// Package discovery answers geospatial proximity queries over the pool of
// currently-available drivers.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

// Filters narrows a Nearby query. Zero values mean "no filter".
type Filters struct {
	VehicleClass models.VehicleClass
	OrgID        string
}

// Finder is the minimal interface required by the matcher and handlers.
type Finder interface {
	Nearby(ctx context.Context, center models.Coord, radiusM float64, f Filters) ([]models.DriverCandidate, error)
	Upsert(ctx context.Context, d models.Driver) error
	Remove(ctx context.Context, driverID string) error
}

// Index is an in-memory Finder backed by a straight scan. Fine for a
// single process and for tests; the Redis backend covers everything else.
type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver)}
}

func (g *Index) Upsert(_ context.Context, d models.Driver) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = time.Now()
	g.drivers[d.ID] = d
	g.updateOnlineGauge()
	return nil
}

func (g *Index) Remove(_ context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.drivers, driverID)
	g.updateOnlineGauge()
	return nil
}

// updateOnlineGauge keeps the gauge equal to the current set size rather
// than counting ticks, so repeated updates from one driver don't inflate
// it. Caller holds g.mu.
func (g *Index) updateOnlineGauge() {
	n := 0
	for _, d := range g.drivers {
		if d.Online {
			n++
		}
	}
	observability.DriversOnline.Set(float64(n))
}

func (g *Index) Nearby(_ context.Context, center models.Coord, radiusM float64, f Filters) ([]models.DriverCandidate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.DriverCandidate, 0, len(g.drivers))
	for _, d := range g.drivers {
		if !eligible(d, f) {
			continue
		}
		dist := geo.Distance(center, d.Loc)
		if dist > radiusM {
			continue
		}
		out = append(out, models.DriverCandidate{
			DriverID:     d.ID,
			DistanceM:    dist,
			Rating:       d.Rating,
			VehicleClass: d.VehicleClass,
			Loc:          d.Loc,
		})
	}
	SortCandidates(out)
	return out, nil
}

func eligible(d models.Driver, f Filters) bool {
	if !d.Online {
		return false
	}
	if f.VehicleClass != "" && d.VehicleClass != f.VehicleClass {
		return false
	}
	if f.OrgID != "" && d.OrgID != f.OrgID {
		return false
	}
	return true
}

// SortCandidates orders by distance ascending, then rating descending,
// then driver id ascending so results are deterministic.
func SortCandidates(cands []models.DriverCandidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.DistanceM != b.DistanceM {
			return a.DistanceM < b.DistanceM
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.DriverID < b.DriverID
	})
}
