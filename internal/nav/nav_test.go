package nav

import (
	"context"
	"errors"
	"testing"
	"time"

	"googlemaps.github.io/maps"

	"github.com/example/ride-dispatch/internal/models"
)

// offsetNorth returns a coordinate roughly distM meters due north of base.
func offsetNorth(base models.Coord, distM float64) models.Coord {
	return models.Coord{Lat: base.Lat + distM/111320.0, Lon: base.Lon}
}

type failingProvider struct{}

func (failingProvider) Route(context.Context, models.Coord, models.Coord) (*models.NavigationRoute, error) {
	return nil, errors.New("provider down")
}

type fixedProvider struct{ route *models.NavigationRoute }

func (p fixedProvider) Route(context.Context, models.Coord, models.Coord) (*models.NavigationRoute, error) {
	return p.route, nil
}

var (
	navStart = models.Coord{Lat: 12.9716, Lon: 77.5946}
	navEnd   = models.Coord{Lat: 12.9352, Lon: 77.6245}
)

func TestInstructionsFallbackWithoutProvider(t *testing.T) {
	e := &Engine{}
	route := e.Instructions(context.Background(), navStart, navEnd)
	if !route.Synthetic {
		t.Fatal("expected synthetic route without a provider")
	}
	if len(route.Instructions) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(route.Instructions))
	}
	if route.Instructions[0].Type != models.Depart || route.Instructions[1].Type != models.Destination {
		t.Fatalf("unexpected instruction types %+v", route.Instructions)
	}
	// 30 km/h assumption: duration_s == distance_m / 8.333..
	wantDur := route.DistanceM / FallbackSpeedMps
	if diff := route.DurationS - wantDur; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("duration %f, want %f", route.DurationS, wantDur)
	}
}

func TestInstructionsFallbackOnProviderError(t *testing.T) {
	e := &Engine{Provider: failingProvider{}}
	route := e.Instructions(context.Background(), navStart, navEnd)
	if route == nil || !route.Synthetic {
		t.Fatal("provider failure must degrade to the synthetic route, not an error")
	}
}

func TestInstructionsUsesProviderRoute(t *testing.T) {
	want := &models.NavigationRoute{
		Instructions: []models.Instruction{{Type: models.Depart, Loc: navStart}, {Type: models.Destination, Loc: navEnd}},
		Geometry:     []models.Coord{navStart, navEnd},
	}
	e := &Engine{Provider: fixedProvider{route: want}}
	if got := e.Instructions(context.Background(), navStart, navEnd); got != want {
		t.Fatal("expected provider route to pass through untouched")
	}
}

func TestCurrentInstruction(t *testing.T) {
	mid := offsetNorth(navStart, 2000)
	route := &models.NavigationRoute{Instructions: []models.Instruction{
		{Type: models.Depart, Text: "depart", Loc: navStart},
		{Type: models.TurnLeft, Text: "turn left", Loc: mid},
		{Type: models.Destination, Text: "arrive", Loc: navEnd},
	}}

	// Within 50 m of the turn.
	ins, ok := CurrentInstruction(route, offsetNorth(mid, 30), CurrentInstructionThresholdM)
	if !ok || ins.Type != models.TurnLeft {
		t.Fatalf("expected turn-left, got %+v ok=%v", ins, ok)
	}
	// Nowhere near any instruction: falls back to the first.
	ins, ok = CurrentInstruction(route, offsetNorth(mid, 900), CurrentInstructionThresholdM)
	if !ok || ins.Type != models.Depart {
		t.Fatalf("expected depart fallback, got %+v ok=%v", ins, ok)
	}
}

func TestIsOffRouteVertexThreshold(t *testing.T) {
	geometry := []models.Coord{navStart, offsetNorth(navStart, 1000), offsetNorth(navStart, 2000)}

	// 150 m from every vertex with a 100 m threshold: off-route.
	pos := models.Coord{Lat: navStart.Lat + 1000/111320.0, Lon: navStart.Lon + 150/111320.0}
	if !IsOffRoute(pos, geometry, OffRouteThresholdM) {
		t.Fatal("150 m off every vertex should be off-route at threshold 100")
	}
	// Exactly on a vertex: on-route.
	if IsOffRoute(geometry[1], geometry, OffRouteThresholdM) {
		t.Fatal("a point on a vertex is not off-route")
	}
	// Empty geometry: never off-route.
	if IsOffRoute(pos, nil, OffRouteThresholdM) {
		t.Fatal("no geometry means nothing to deviate from")
	}
}

func TestRerouteNilWhenOnRoute(t *testing.T) {
	e := &Engine{}
	route := SyntheticRoute(navStart, navEnd)
	if got := e.Reroute(context.Background(), navStart, navEnd, route); got != nil {
		t.Fatal("on-route reroute must return nil")
	}
}

func TestRerouteReplacesWholesale(t *testing.T) {
	e := &Engine{}
	route := SyntheticRoute(navStart, navEnd)
	lost := offsetNorth(navStart, 5000)
	got := e.Reroute(context.Background(), lost, navEnd, route)
	if got == nil || got == route {
		t.Fatal("off-route reroute must return a brand-new route")
	}
	if got.Instructions[0].Loc != lost {
		t.Fatalf("new route must start at the current position, got %+v", got.Instructions[0].Loc)
	}
}

func TestManeuverMapping(t *testing.T) {
	cases := map[string]models.InstructionType{
		"turn-left":         models.TurnLeft,
		"turn-right":        models.TurnRight,
		"turn-slight-left":  models.TurnSlightLeft,
		"turn-slight-right": models.TurnSlightRight,
		"turn-sharp-left":   models.TurnSharpLeft,
		"turn-sharp-right":  models.TurnSharpRight,
		"uturn-left":        models.TurnSharpLeft,
		"roundabout-left":   models.Roundabout,
		"roundabout-right":  models.Roundabout,
		"merge":             models.Straight,
		"":                  models.Straight,
		"teleport":          models.Straight,
	}
	for maneuver, want := range cases {
		if got := maneuverToType(maneuver); got != want {
			t.Errorf("maneuverToType(%q) = %s, want %s", maneuver, got, want)
		}
	}
}

func TestManeuverFromText(t *testing.T) {
	cases := map[string]string{
		"Turn left onto MG Road":                        "turn-left",
		"Turn right onto NH 44":                         "turn-right",
		"Slight left onto Residency Road":               "turn-slight-left",
		"Sharp right onto Hosur Road":                   "turn-sharp-right",
		"Keep right at the fork":                        "keep-right",
		"At the roundabout, take the 2nd exit":          "roundabout-left",
		"Make a U-turn at Trinity Circle":               "uturn-left",
		"Merge onto Outer Ring Road":                    "merge",
		"Head north on Brigade Road":                    "straight",
		"Continue onto Old Airport Road":                "straight",
		"Take the ramp to Electronic City":              "ramp-right",
		"Board the metro toward Baiyappanahalli":        "",
		"Use the left 2 lanes to take exit 14 toward X": "",
	}
	for text, want := range cases {
		if got := maneuverFromText(text); got != want {
			t.Errorf("maneuverFromText(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestManeuverFromBearing(t *testing.T) {
	cases := []struct {
		delta float64
		want  string
	}{
		{0, "straight"},
		{15, "straight"},
		{-15, "straight"},
		{45, "turn-slight-right"},
		{-45, "turn-slight-left"},
		{90, "turn-right"},
		{-90, "turn-left"},
		{170, "turn-sharp-right"},
		{-170, "turn-sharp-left"},
	}
	for _, tc := range cases {
		if got := maneuverFromBearing(tc.delta); got != tc.want {
			t.Errorf("maneuverFromBearing(%v) = %q, want %q", tc.delta, got, tc.want)
		}
	}
}

func TestStepBearingDelta(t *testing.T) {
	// Previous step heads due north, current step due east: a right turn.
	prev := &maps.Step{
		StartLocation: maps.LatLng{Lat: 12.97, Lng: 77.59},
		EndLocation:   maps.LatLng{Lat: 12.98, Lng: 77.59},
	}
	cur := &maps.Step{
		StartLocation: maps.LatLng{Lat: 12.98, Lng: 77.59},
		EndLocation:   maps.LatLng{Lat: 12.98, Lng: 77.60},
	}
	d := stepBearingDelta(prev, cur)
	if d < 80 || d > 100 {
		t.Fatalf("delta = %v, want ~90", d)
	}
	if got := maneuverFromBearing(d); got != "turn-right" {
		t.Fatalf("maneuver = %q, want turn-right", got)
	}
}

func TestStripHTML(t *testing.T) {
	in := `Turn <b>left</b> onto <div style="font-size:0.9em">MG Road</div>`
	if got := stripHTML(in); got != "Turn left onto MG Road" {
		t.Fatalf("stripHTML = %q", got)
	}
}

func TestETAServiceFallsBackToNaive(t *testing.T) {
	s := &ETAService{}
	got := s.ETA(context.Background(), navStart, navEnd)
	if got <= 0 {
		t.Fatalf("naive ETA = %v, want positive", got)
	}
}

type fixedETA struct{ secs float64 }

func (f fixedETA) EstimateSeconds(context.Context, models.Coord, models.Coord) (float64, error) {
	return f.secs, nil
}

func TestETAServiceCaches(t *testing.T) {
	cache := NewCache(time.Minute)
	s := &ETAService{Client: fixedETA{secs: 120}, Cache: cache}
	if got := s.ETA(context.Background(), navStart, navEnd); got != 2*time.Minute {
		t.Fatalf("ETA = %v, want 2m", got)
	}
	if v, ok := cache.Get(navStart, navEnd); !ok || v != 120 {
		t.Fatalf("cache miss after lookup: v=%f ok=%v", v, ok)
	}
}
