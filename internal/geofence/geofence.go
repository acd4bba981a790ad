// Package geofence classifies driver-to-target proximity and fires
// arrival side effects exactly once per classification change.
package geofence

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
)

type Classification string

const (
	Arrived   Classification = "arrived"    // <= 50 m
	VeryClose Classification = "very_close" // <= 100 m
	Close     Classification = "close"      // <= 500 m
	Nearby    Classification = "nearby"     // <= 1000 m
	Far       Classification = "far"
)

// Classify maps a distance in meters onto a proximity tier.
func Classify(distanceM float64) Classification {
	switch {
	case distanceM <= 50:
		return Arrived
	case distanceM <= 100:
		return VeryClose
	case distanceM <= 500:
		return Close
	case distanceM <= 1000:
		return Nearby
	default:
		return Far
	}
}

// Event is raised when an observer's classification changes. Reaching
// Arrived never mutates trip status here; that stays with the request
// lifecycle service.
type Event struct {
	ObserverID     string
	TripID         string
	Classification Classification
	Previous       Classification
	DistanceM      float64
	Bearing        string // 8-point compass label toward the target
}

type observerState struct {
	classification Classification
	distanceM      float64
}

// Evaluator keeps the last classification per observer in process memory
// only; it is derived state and safe to lose on restart. Each tick is a
// map lookup and a distance computation, no I/O.
type Evaluator struct {
	mu       sync.Mutex
	states   map[string]observerState
	notifier notify.Notifier
	onEvent  func(Event)
}

func NewEvaluator(notifier notify.Notifier) *Evaluator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Evaluator{states: make(map[string]observerState), notifier: notifier}
}

// OnEvent registers a hook invoked after each classification change.
func (e *Evaluator) OnEvent(fn func(Event)) { e.onEvent = fn }

// Tick evaluates one received location against the observer's target and
// fires side effects only when the classification changed since the last
// tick. Returns the event and true when a change was detected.
func (e *Evaluator) Tick(ctx context.Context, observerID, tripID string, current, target models.Coord) (Event, bool) {
	dist := geo.Distance(current, target)
	cls := Classify(dist)

	e.mu.Lock()
	prev, seen := e.states[observerID]
	e.states[observerID] = observerState{classification: cls, distanceM: dist}
	e.mu.Unlock()

	if seen && prev.classification == cls {
		return Event{}, false
	}
	ev := Event{
		ObserverID:     observerID,
		TripID:         tripID,
		Classification: cls,
		Previous:       prev.classification,
		DistanceM:      dist,
		Bearing:        geo.CompassLabel(geo.Bearing(current, target)),
	}
	observability.GeofenceEventsTotal.WithLabelValues(string(cls)).Inc()
	e.notifier.Notify(ctx, observerID, notificationFor(ev))
	if e.onEvent != nil {
		e.onEvent(ev)
	}
	return ev, true
}

// Forget drops an observer's debounce state, e.g. when its trip ends.
func (e *Evaluator) Forget(observerID string) {
	e.mu.Lock()
	delete(e.states, observerID)
	e.mu.Unlock()
}

func notificationFor(ev Event) notify.Notification {
	n := notify.Notification{
		Metadata: map[string]string{
			"trip_id":    ev.TripID,
			"proximity":  string(ev.Classification),
			"distance_m": fmt.Sprintf("%.0f", ev.DistanceM),
			"bearing":    ev.Bearing,
		},
	}
	switch ev.Classification {
	case Arrived:
		n.Title = "Your driver has arrived"
		n.Message = "Meet your driver at the pickup point."
		n.Intensity = "heavy"
	case VeryClose:
		n.Title = "Driver almost there"
		n.Message = fmt.Sprintf("Your driver is about %.0f m away, approaching from the %s.", ev.DistanceM, ev.Bearing)
		n.Intensity = "medium"
	case Close, Nearby:
		n.Title = "Driver nearby"
		n.Message = fmt.Sprintf("Your driver is about %.0f m away.", ev.DistanceM)
		n.Intensity = "light"
	default:
		n.Title = "Driver on the way"
		n.Message = "Your driver is heading to the pickup point."
	}
	return n
}
