package discovery

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

func seedIndex(t *testing.T, drivers ...models.Driver) *Index {
	t.Helper()
	idx := NewIndex()
	for _, d := range drivers {
		if err := idx.Upsert(context.Background(), d); err != nil {
			t.Fatalf("upsert %s: %v", d.ID, err)
		}
	}
	return idx
}

func TestNearbySortedByDistance(t *testing.T) {
	center := models.Coord{Lat: 0, Lon: 0}
	idx := seedIndex(t,
		models.Driver{ID: "far", Loc: models.Coord{Lat: 0.02, Lon: 0}, Rating: 5, VehicleClass: models.VehicleCar, Online: true},
		models.Driver{ID: "near", Loc: models.Coord{Lat: 0.001, Lon: 0}, Rating: 3, VehicleClass: models.VehicleCar, Online: true},
		models.Driver{ID: "mid", Loc: models.Coord{Lat: 0.01, Lon: 0}, Rating: 4, VehicleClass: models.VehicleCar, Online: true},
	)
	cands, err := idx.Nearby(context.Background(), center, 5000, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(cands))
	}
	for i, want := range []string{"near", "mid", "far"} {
		if cands[i].DriverID != want {
			t.Errorf("pos %d: got %s, want %s", i, cands[i].DriverID, want)
		}
	}
}

func TestNearbyTieBreakRatingThenID(t *testing.T) {
	center := models.Coord{Lat: 0, Lon: 0}
	same := models.Coord{Lat: 0.001, Lon: 0}
	idx := seedIndex(t,
		models.Driver{ID: "b", Loc: same, Rating: 4.0, VehicleClass: models.VehicleCar, Online: true},
		models.Driver{ID: "c", Loc: same, Rating: 5.0, VehicleClass: models.VehicleCar, Online: true},
		models.Driver{ID: "a", Loc: same, Rating: 4.0, VehicleClass: models.VehicleCar, Online: true},
	)
	cands, err := idx.Nearby(context.Background(), center, 5000, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	got := []string{cands[0].DriverID, cands[1].DriverID, cands[2].DriverID}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
}

func TestNearbyFilters(t *testing.T) {
	center := models.Coord{Lat: 0, Lon: 0}
	loc := models.Coord{Lat: 0.001, Lon: 0}
	idx := seedIndex(t,
		models.Driver{ID: "offline", Loc: loc, VehicleClass: models.VehicleCar, Online: false},
		models.Driver{ID: "bike", Loc: loc, VehicleClass: models.VehicleBike, Online: true},
		models.Driver{ID: "other-org", Loc: loc, VehicleClass: models.VehicleCar, OrgID: "acme", Online: true},
		models.Driver{ID: "match", Loc: loc, VehicleClass: models.VehicleCar, OrgID: "initech", Online: true},
		models.Driver{ID: "outside", Loc: models.Coord{Lat: 1, Lon: 1}, VehicleClass: models.VehicleCar, OrgID: "initech", Online: true},
	)
	cands, err := idx.Nearby(context.Background(), center, 5000, Filters{VehicleClass: models.VehicleCar, OrgID: "initech"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].DriverID != "match" {
		t.Fatalf("unexpected candidates %+v", cands)
	}
}

func TestOnlineGaugeTracksSetSize(t *testing.T) {
	ctx := context.Background()
	loc := models.Coord{Lat: 0.001, Lon: 0}
	idx := seedIndex(t,
		models.Driver{ID: "a", Loc: loc, VehicleClass: models.VehicleCar, Online: true},
		models.Driver{ID: "b", Loc: loc, VehicleClass: models.VehicleCar, Online: true},
		models.Driver{ID: "c", Loc: loc, VehicleClass: models.VehicleCar, Online: false},
	)
	if got := testutil.ToFloat64(observability.DriversOnline); got != 2 {
		t.Fatalf("gauge = %v, want 2", got)
	}

	// Repeated ticks from one driver must not inflate the gauge.
	for i := 0; i < 5; i++ {
		if err := idx.Upsert(ctx, models.Driver{ID: "a", Loc: loc, VehicleClass: models.VehicleCar, Online: true}); err != nil {
			t.Fatal(err)
		}
	}
	if got := testutil.ToFloat64(observability.DriversOnline); got != 2 {
		t.Fatalf("gauge after repeated ticks = %v, want 2", got)
	}

	if err := idx.Remove(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(observability.DriversOnline); got != 1 {
		t.Fatalf("gauge after remove = %v, want 1", got)
	}
}
