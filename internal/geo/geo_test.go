package geo

import (
	"math"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	if d := Haversine(12.97, 77.59, 12.97, 77.59); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineSymmetric(t *testing.T) {
	ab := Haversine(12.9716, 77.5946, 13.0827, 80.2707)
	ba := Haversine(13.0827, 80.2707, 12.9716, 77.5946)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", ab, ba)
	}
	// Bangalore to Chennai is roughly 290 km as the crow flies.
	if ab < 280000 || ab > 300000 {
		t.Fatalf("implausible distance %f", ab)
	}
}

func TestBearingCardinal(t *testing.T) {
	origin := models.Coord{Lat: 0, Lon: 0}
	cases := []struct {
		to    models.Coord
		label string
	}{
		{models.Coord{Lat: 1, Lon: 0}, "N"},
		{models.Coord{Lat: 0, Lon: 1}, "E"},
		{models.Coord{Lat: -1, Lon: 0}, "S"},
		{models.Coord{Lat: 0, Lon: -1}, "W"},
		{models.Coord{Lat: 1, Lon: 1}, "NE"},
		{models.Coord{Lat: -1, Lon: -1}, "SW"},
	}
	for _, tc := range cases {
		b := Bearing(origin, tc.to)
		if got := CompassLabel(b); got != tc.label {
			t.Errorf("bearing to %+v = %f, label %s, want %s", tc.to, b, got, tc.label)
		}
	}
}

func TestCompassLabelWrapsNorth(t *testing.T) {
	for _, deg := range []float64{0, 10, 350, 359.9} {
		if got := CompassLabel(deg); got != "N" {
			t.Errorf("CompassLabel(%f) = %s, want N", deg, got)
		}
	}
}
