package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/discovery"
	"github.com/example/ride-dispatch/internal/match"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/request"
	"github.com/example/ride-dispatch/internal/track"
)

func newTestServer(t *testing.T) (*Server, *request.Service, *discovery.Index) {
	t.Helper()
	store := request.NewMemoryStore()
	svc := request.NewService(store, nil, nil)
	finder := discovery.NewIndex()
	engine := &match.Engine{
		Store:  store,
		Finder: finder,
		Claims: match.NewMemoryClaims(),
	}
	srv := NewServer(Deps{
		Requests: svc,
		Matcher:  engine,
		Finder:   finder,
	})
	return srv, svc, finder
}

func createBody(riderID string) []byte {
	b, _ := json.Marshal(createRideBody{
		RiderID:      riderID,
		Pickup:       models.Place{Coord: models.Coord{Lat: 12.97, Lon: 77.59}, Label: "home"},
		Drop:         models.Place{Coord: models.Coord{Lat: 13.00, Lon: 77.60}, Label: "office"},
		VehicleClass: models.VehicleCar,
		DistanceKm:   10,
		DurationMin:  20,
	})
	return b
}

func TestCreateRideStaysSearchingWithoutDrivers(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/rides/request", bytes.NewReader(createBody("rider1"))))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var rr models.RideRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &rr); err != nil {
		t.Fatal(err)
	}
	if rr.Status != models.StatusSearching {
		t.Fatalf("status = %s, want searching", rr.Status)
	}
	if rr.Fare <= 0 {
		t.Fatalf("fare = %d, want > 0", rr.Fare)
	}
}

func TestCreateRideMatchesImmediatelyWhenDriverNearby(t *testing.T) {
	srv, _, finder := newTestServer(t)
	finder.Upsert(context.Background(), models.Driver{
		ID:           "d1",
		Loc:          models.Coord{Lat: 12.971, Lon: 77.591},
		Rating:       4.8,
		VehicleClass: models.VehicleCar,
		Online:       true,
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/rides/request", bytes.NewReader(createBody("rider1"))))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var rr models.RideRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &rr); err != nil {
		t.Fatal(err)
	}
	if rr.Status != models.StatusMatched || rr.DriverID != "d1" {
		t.Fatalf("got status=%s driver=%s, want matched/d1", rr.Status, rr.DriverID)
	}
}

func TestCreateRideValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	b, _ := json.Marshal(createRideBody{
		RiderID:      "rider1",
		Pickup:       models.Place{Coord: models.Coord{Lat: 95, Lon: 0}},
		Drop:         models.Place{Coord: models.Coord{Lat: 13, Lon: 77.6}},
		VehicleClass: models.VehicleCar,
		DistanceKm:   5,
		DurationMin:  10,
	})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/rides/request", bytes.NewReader(b)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetRideNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/rides/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	srv, svc, _ := newTestServer(t)
	rr, err := svc.Create(context.Background(), request.CreateParams{
		RiderID:      "rider1",
		Pickup:       models.Place{Coord: models.Coord{Lat: 12.97, Lon: 77.59}},
		Drop:         models.Place{Coord: models.Coord{Lat: 13, Lon: 77.6}},
		VehicleClass: models.VehicleCar,
		DistanceKm:   5,
		DurationMin:  10,
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/rides/"+rr.ID+"/cancel", bytes.NewReader([]byte(`{}`))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/rides/"+rr.ID+"/cancel", bytes.NewReader([]byte(`{"reason":"changed my mind"}`))))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got models.RideRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestAcceptOnlyFromMatched(t *testing.T) {
	srv, _, finder := newTestServer(t)
	finder.Upsert(context.Background(), models.Driver{
		ID:           "d1",
		Loc:          models.Coord{Lat: 12.971, Lon: 77.591},
		VehicleClass: models.VehicleCar,
		Online:       true,
	})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/rides/request", bytes.NewReader(createBody("rider1"))))
	var rr models.RideRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &rr); err != nil {
		t.Fatal(err)
	}
	if rr.Status != models.StatusMatched {
		t.Fatalf("precondition: status = %s", rr.Status)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/rides/"+rr.ID+"/accept", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Second accept conflicts: the trip already left matched.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/rides/"+rr.ID+"/accept", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("second accept status = %d, want 409", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/rides/"+rr.ID+"/complete", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", rec.Code, rec.Body.String())
	}
	var done models.RideRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &done); err != nil {
		t.Fatal(err)
	}
	if done.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
}

func TestDriverLocationIngest(t *testing.T) {
	srv, _, finder := newTestServer(t)

	body, _ := json.Marshal(models.Driver{
		ID:           "d9",
		Loc:          models.Coord{Lat: 12.9, Lon: 77.5},
		VehicleClass: models.VehicleCar,
		Rating:       4.5,
	})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/internal/driver/locations", bytes.NewReader(body)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	cands, err := finder.Nearby(context.Background(), models.Coord{Lat: 12.9, Lon: 77.5}, 1000, discovery.Filters{VehicleClass: models.VehicleCar})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].DriverID != "d9" {
		t.Fatalf("driver not discoverable after ingest: %+v", cands)
	}
}

func TestDriverLocationRejectsBadCoords(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := []byte(fmt.Sprintf(`{"id":"d1","loc":{"lat":%v,"lon":0}}`, 123.0))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/internal/driver/locations", bytes.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDriverWSSessionReapedOnDisconnect(t *testing.T) {
	store := request.NewMemoryStore()
	sessions := track.NewDriverSessions(nil)
	srv := NewServer(Deps{
		Requests: request.NewService(store, nil, nil),
		Sessions: sessions,
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/drivers/d1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, "session registered", func() bool { return sessions.Connected("d1") })
	conn.Close()
	waitFor(t, "session reaped after disconnect", func() bool { return !sessions.Connected("d1") })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", what)
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
