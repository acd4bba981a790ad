// Package httpapi exposes the ride lifecycle, driver location ingest and
// live tracking websockets over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/discovery"
	"github.com/example/ride-dispatch/internal/geofence"
	"github.com/example/ride-dispatch/internal/match"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/nav"
	"github.com/example/ride-dispatch/internal/request"
	"github.com/example/ride-dispatch/internal/track"
)

// LocationPublisher forwards a driver position to the location stream.
type LocationPublisher interface {
	PublishLocation(loc models.LiveLocation) error
}

// Deps carries everything the HTTP layer needs. Optional fields may be
// nil; the corresponding behavior is skipped.
type Deps struct {
	Requests *request.Service
	Matcher  *match.Engine // immediate match attempt on create
	Finder   discovery.Finder
	Hub      *track.Hub
	Sessions *track.DriverSessions
	Producer LocationPublisher
	Tracker  *geofence.Tracker
	Nav      *nav.Engine
	Logger   *slog.Logger
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides/request", s.handleCreateRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{id}/cancel", s.handleCancelRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}/accept", s.handleAcceptRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}/complete", s.handleCompleteRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}/route", s.handleRideRoute).Methods("GET")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/ws/trips/{trip_id}", s.handleTripWS).Methods("GET")
	s.mux.HandleFunc("/ws/drivers/{driver_id}", s.handleDriverWS).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}
