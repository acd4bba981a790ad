// Package nav supplies turn-by-turn instructions, ETA estimates, and
// off-route detection for active trips.
package nav

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

const (
	// CurrentInstructionThresholdM matches an instruction to the live
	// position.
	CurrentInstructionThresholdM = 50.0
	// OffRouteThresholdM is the deviation that counts as leaving the route.
	OffRouteThresholdM = 100.0
)

// Provider fetches a full turn-by-turn route from an external service.
type Provider interface {
	Route(ctx context.Context, start, end models.Coord) (*models.NavigationRoute, error)
}

// Engine wraps a Provider with the mandatory straight-line fallback: no
// operation here ever surfaces a provider failure to the caller.
type Engine struct {
	Provider Provider // nil when no routing credential is configured
	Logger   *slog.Logger
}

// Instructions returns a route from start to end. On any provider problem
// the synthetic 2-step fallback is returned instead of an error.
func (e *Engine) Instructions(ctx context.Context, start, end models.Coord) *models.NavigationRoute {
	if e.Provider == nil {
		return SyntheticRoute(start, end)
	}
	route, err := e.Provider.Route(ctx, start, end)
	if err != nil || route == nil || len(route.Instructions) == 0 {
		if e.Logger != nil {
			e.Logger.Warn("routing provider unavailable, using synthetic route", "error", err)
		}
		return SyntheticRoute(start, end)
	}
	return route
}

// SyntheticRoute builds the depart/arrive fallback using straight-line
// distance and the fixed 30 km/h average-speed assumption.
func SyntheticRoute(start, end models.Coord) *models.NavigationRoute {
	dist := geo.Distance(start, end)
	durS := dist / FallbackSpeedMps
	return &models.NavigationRoute{
		Instructions: []models.Instruction{
			{
				Type:      models.Depart,
				Text:      fmt.Sprintf("Head %s toward your destination", geo.CompassLabel(geo.Bearing(start, end))),
				DistanceM: dist,
				DurationS: durS,
				Loc:       start,
			},
			{
				Type: models.Destination,
				Text: "You have arrived at your destination",
				Loc:  end,
			},
		},
		Geometry:  []models.Coord{start, end},
		DistanceM: dist,
		DurationS: durS,
		Synthetic: true,
	}
}

// CurrentInstruction returns the first instruction whose location lies
// within thresholdM of the current position, falling back to the first
// instruction when none match.
func CurrentInstruction(route *models.NavigationRoute, current models.Coord, thresholdM float64) (models.Instruction, bool) {
	if route == nil || len(route.Instructions) == 0 {
		return models.Instruction{}, false
	}
	for _, ins := range route.Instructions {
		if geo.Distance(current, ins.Loc) <= thresholdM {
			return ins, true
		}
	}
	return route.Instructions[0], true
}

// IsOffRoute reports whether the current position is further than
// thresholdM from every vertex of the route geometry. Vertex-to-point is
// an accepted approximation of true point-to-segment distance.
func IsOffRoute(current models.Coord, geometry []models.Coord, thresholdM float64) bool {
	if len(geometry) == 0 {
		return false
	}
	min := math.MaxFloat64
	for _, v := range geometry {
		if d := geo.Distance(current, v); d < min {
			min = d
		}
	}
	return min > thresholdM
}

// Reroute returns nil while still on-route; otherwise it computes a brand
// new route from the current position, replacing the old one wholesale.
func (e *Engine) Reroute(ctx context.Context, current, destination models.Coord, route *models.NavigationRoute) *models.NavigationRoute {
	if route != nil && !IsOffRoute(current, route.Geometry, OffRouteThresholdM) {
		return nil
	}
	return e.Instructions(ctx, current, destination)
}
