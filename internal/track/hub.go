// Package track distributes live driver positions to subscribers.
// Delivery is at-least-once and unordered; the hub drops records older
// than the newest it has seen for a key so consumers only observe
// monotone time.
package track

import (
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

const subscriberBuffer = 16

type subscriber struct {
	ch chan models.LiveLocation
}

// Hub is an explicit connection registry owned by whoever constructs it;
// nothing here lives at package level, so process and test lifetimes
// stay isolated.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*subscriber]struct{} // key: trip or driver id
	watermarks map[string]time.Time
}

func NewHub() *Hub {
	return &Hub{
		subs:       make(map[string]map[*subscriber]struct{}),
		watermarks: make(map[string]time.Time),
	}
}

// Subscribe registers interest in a trip or driver id and returns the
// event channel plus a disposer. The disposer is idempotent.
func (h *Hub) Subscribe(key string) (<-chan models.LiveLocation, func()) {
	s := &subscriber{ch: make(chan models.LiveLocation, subscriberBuffer)}
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*subscriber]struct{})
	}
	h.subs[key][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	dispose := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[key]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(h.subs, key)
				}
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, dispose
}

// Publish fans a location out to subscribers of both the driver id and,
// when set, the trip id. Records at or before the current watermark are
// dropped; slow subscribers lose intermediate ticks rather than block
// the publisher (the next tick self-heals).
func (h *Hub) Publish(loc models.LiveLocation) {
	h.mu.Lock()
	if wm, ok := h.watermarks[loc.DriverID]; ok && !loc.Timestamp.After(wm) {
		h.mu.Unlock()
		observability.LocationsDroppedTotal.Inc()
		return
	}
	h.watermarks[loc.DriverID] = loc.Timestamp

	// Sends stay under the lock so a racing dispose cannot close a
	// channel mid-send; they are non-blocking, so this is still O(subs).
	for s := range h.subs[loc.DriverID] {
		select {
		case s.ch <- loc:
		default:
		}
	}
	if loc.TripID != "" && loc.TripID != loc.DriverID {
		for s := range h.subs[loc.TripID] {
			select {
			case s.ch <- loc:
			default:
			}
		}
	}
	h.mu.Unlock()
	observability.LocationsPublishedTotal.Inc()
}

// SubscriberCount reports active subscriptions for a key, for tests and
// admin introspection.
func (h *Hub) SubscriberCount(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}
