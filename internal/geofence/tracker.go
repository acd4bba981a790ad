package geofence

import (
	"context"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

// Target is what a driver is currently heading to: the pickup point
// until the trip is accepted, the drop point afterward.
type Target struct {
	TripID  string
	RiderID string
	Coord   models.Coord
}

// Tracker maps driver ids to their active target so a location tick can
// be evaluated with a single map lookup and no I/O.
type Tracker struct {
	mu      sync.RWMutex
	targets map[string]Target // by driver id
	eval    *Evaluator
}

func NewTracker(eval *Evaluator) *Tracker {
	return &Tracker{targets: make(map[string]Target), eval: eval}
}

// SetTarget registers or replaces the driver's destination. Called on
// match (pickup) and on accept (drop).
func (t *Tracker) SetTarget(driverID string, target Target) {
	t.mu.Lock()
	t.targets[driverID] = target
	t.mu.Unlock()
	// A new leg restarts proximity from scratch for both observers.
	t.eval.Forget(riderObserver(target.RiderID, target.TripID))
	t.eval.Forget(driverObserver(driverID, target.TripID))
}

// Clear drops the driver's target and debounce state when a trip ends.
func (t *Tracker) Clear(driverID string) {
	t.mu.Lock()
	target, ok := t.targets[driverID]
	delete(t.targets, driverID)
	t.mu.Unlock()
	if ok {
		t.eval.Forget(riderObserver(target.RiderID, target.TripID))
		t.eval.Forget(driverObserver(driverID, target.TripID))
	}
}

// OnLocation evaluates one tick against the driver's registered target.
// Drivers without an active trip are ignored.
func (t *Tracker) OnLocation(ctx context.Context, loc models.LiveLocation) {
	t.mu.RLock()
	target, ok := t.targets[loc.DriverID]
	t.mu.RUnlock()
	if !ok {
		return
	}
	t.eval.Tick(ctx, riderObserver(target.RiderID, target.TripID), target.TripID, loc.Loc, target.Coord)
	t.eval.Tick(ctx, driverObserver(loc.DriverID, target.TripID), target.TripID, loc.Loc, target.Coord)
}

func riderObserver(riderID, tripID string) string {
	return "rider:" + riderID + ":" + tripID
}

func driverObserver(driverID, tripID string) string {
	return "driver:" + driverID + ":" + tripID
}
