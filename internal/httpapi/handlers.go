package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/ride-dispatch/internal/geofence"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/nav"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/request"
	"github.com/example/ride-dispatch/internal/track"
)

type createRideBody struct {
	RiderID      string              `json:"rider_id"`
	Pickup       models.Place        `json:"pickup"`
	Drop         models.Place        `json:"drop"`
	VehicleClass models.VehicleClass `json:"vehicle_class"`
	DistanceKm   float64             `json:"distance_km"`
	DurationMin  float64             `json:"duration_min"`
	Promo        *pricing.Promo      `json:"promo,omitempty"`
	ScheduledAt  *time.Time          `json:"scheduled_at,omitempty"`
	OrgOnly      bool                `json:"org_only,omitempty"`
	OrgID        string              `json:"org_id,omitempty"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var body createRideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	rr, err := s.deps.Requests.Create(r.Context(), request.CreateParams{
		RiderID:      body.RiderID,
		Pickup:       body.Pickup,
		Drop:         body.Drop,
		VehicleClass: body.VehicleClass,
		DistanceKm:   body.DistanceKm,
		DurationMin:  body.DurationMin,
		Promo:        body.Promo,
		ScheduledAt:  body.ScheduledAt,
		OrgOnly:      body.OrgOnly,
		OrgID:        body.OrgID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// One synchronous attempt so an available nearby driver shows up in
	// the create response. Failure just leaves the request searching for
	// the scheduler to retry.
	if s.deps.Matcher != nil && rr.Status == models.StatusSearching {
		if _, err := s.deps.Matcher.AutoMatch(r.Context(), rr.ID); err != nil && !errors.Is(err, request.ErrConflict) {
			s.logger.Warn("immediate match attempt failed", "request_id", rr.ID, "error", err)
		}
		if fresh, err := s.deps.Requests.Get(r.Context(), rr.ID); err == nil {
			rr = fresh
		}
	}
	writeJSON(w, http.StatusCreated, rr)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	rr, err := s.deps.Requests.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rr)
}

type cancelBody struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body cancelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if body.Actor == "" {
		body.Actor = "rider"
	}
	if err := s.deps.Requests.Cancel(r.Context(), id, body.Reason, body.Actor); err != nil {
		writeServiceError(w, err)
		return
	}
	s.releaseDriver(r, id)
	rr, err := s.deps.Requests.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rr)
}

func (s *Server) handleAcceptRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Requests.Accept(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	rr, err := s.deps.Requests.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// From acceptance on, proximity alerts track the drop point.
	if s.deps.Tracker != nil && rr.DriverID != "" {
		s.deps.Tracker.SetTarget(rr.DriverID, geofence.Target{
			TripID:  rr.ID,
			RiderID: rr.RiderID,
			Coord:   rr.Drop.Coord,
		})
	}
	writeJSON(w, http.StatusOK, rr)
}

func (s *Server) handleCompleteRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Requests.Complete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	s.releaseDriver(r, id)
	rr, err := s.deps.Requests.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rr)
}

// releaseDriver frees the driver claim and stops geofence tracking once a
// trip reaches a terminal state. Best effort.
func (s *Server) releaseDriver(r *http.Request, id string) {
	rr, err := s.deps.Requests.Get(r.Context(), id)
	if err != nil || rr.DriverID == "" {
		return
	}
	if s.deps.Tracker != nil {
		s.deps.Tracker.Clear(rr.DriverID)
	}
	if s.deps.Matcher != nil && s.deps.Matcher.Claims != nil {
		if err := s.deps.Matcher.Claims.Release(r.Context(), rr.DriverID); err != nil {
			s.logger.Warn("claim release failed", "driver_id", rr.DriverID, "error", err)
		}
	}
}

func (s *Server) handleRideRoute(w http.ResponseWriter, r *http.Request) {
	rr, err := s.deps.Requests.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var route *models.NavigationRoute
	if s.deps.Nav != nil {
		route = s.deps.Nav.Instructions(r.Context(), rr.Pickup.Coord, rr.Drop.Coord)
	} else {
		route = nav.SyntheticRoute(rr.Pickup.Coord, rr.Drop.Coord)
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if d.ID == "" {
		writeError(w, http.StatusBadRequest, "driver id required")
		return
	}
	if d.Loc.Lat < -90 || d.Loc.Lat > 90 || d.Loc.Lon < -180 || d.Loc.Lon > 180 {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	d.Online = true
	if d.Updated.IsZero() {
		d.Updated = time.Now()
	}

	loc := models.LiveLocation{
		DriverID:  d.ID,
		Loc:       d.Loc,
		Heading:   d.Heading,
		SpeedMps:  d.SpeedMps,
		Timestamp: d.Updated,
	}
	if s.deps.Producer != nil {
		if err := s.deps.Producer.PublishLocation(loc); err != nil {
			s.logger.Warn("location publish failed", "driver_id", d.ID, "error", err)
		}
	}
	if s.deps.Finder != nil {
		if err := s.deps.Finder.Upsert(r.Context(), d); err != nil {
			s.logger.Warn("geo upsert failed", "driver_id", d.ID, "error", err)
		}
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Publish(loc)
	}
	if s.deps.Tracker != nil {
		s.deps.Tracker.OnLocation(r.Context(), loc)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTripWS(w http.ResponseWriter, r *http.Request) {
	tripID := mux.Vars(r)["trip_id"]
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live tracking unavailable")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	track.StreamTrip(r.Context(), s.deps.Hub, tripID, conn)
}

func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	if s.deps.Sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "driver channel unavailable")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.deps.Sessions.Add(driverID, conn)
	defer func() {
		s.deps.Sessions.Remove(driverID)
		conn.Close()
	}()
	// Offers flow outbound only; the read loop exists to notice the peer
	// going away so the session is reaped instead of accumulating.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, request.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, request.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, request.ErrInvalidTransition), errors.Is(err, request.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
