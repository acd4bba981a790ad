package track

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/match"
)

// WSSession wraps one connected device socket. gorilla connections are
// not safe for concurrent writes, hence the mutex.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) SendJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// DriverSessions holds connected driver sockets and delivers match
// offers to them. It implements match.Dispatcher.
type DriverSessions struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *slog.Logger
}

func NewDriverSessions(logger *slog.Logger) *DriverSessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &DriverSessions{sessions: make(map[string]*WSSession), logger: logger}
}

func (r *DriverSessions) Add(driverID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[driverID] = &WSSession{conn: conn}
}

func (r *DriverSessions) Remove(driverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, driverID)
}

// Connected reports whether a live session exists for the driver.
func (r *DriverSessions) Connected(driverID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[driverID]
	return ok
}

func (r *DriverSessions) Offer(_ context.Context, driverID string, o match.Offer) error {
	r.mu.RLock()
	s, ok := r.sessions[driverID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.SendJSON(o); err != nil {
		r.logger.Warn("ws offer send failed", "driver_id", driverID, "error", err)
		return err
	}
	return nil
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }

// StreamTrip copies hub events for a trip onto a rider's websocket until
// the context ends, the subscription is disposed, or the socket breaks.
func StreamTrip(ctx context.Context, hub *Hub, tripID string, conn *websocket.Conn) {
	events, dispose := hub.Subscribe(tripID)
	defer dispose()
	sess := &WSSession{conn: conn}
	for {
		select {
		case <-ctx.Done():
			return
		case loc, ok := <-events:
			if !ok {
				return
			}
			if err := sess.SendJSON(loc); err != nil {
				return
			}
		}
	}
}

var _ match.Dispatcher = (*DriverSessions)(nil)
