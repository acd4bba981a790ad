package nav

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// GoogleProvider fetches turn-by-turn routes from the Google Maps
// Directions API and converts maneuver codes into the app taxonomy.
type GoogleProvider struct {
	client *maps.Client
}

func NewGoogleProvider(apiKey string) (*GoogleProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating maps client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

func (g *GoogleProvider) Route(ctx context.Context, start, end models.Coord) (*models.NavigationRoute, error) {
	req := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", start.Lat, start.Lon),
		Destination: fmt.Sprintf("%f,%f", end.Lat, end.Lon),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := g.client.Directions(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("directions request: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	route := &models.NavigationRoute{
		DistanceM: float64(leg.Distance.Meters),
		DurationS: leg.Duration.Seconds(),
	}
	for i, step := range leg.Steps {
		text := stripHTML(step.HTMLInstructions)
		// The Directions payload carries no maneuver code, so it is
		// recovered from the instruction text, with the bearing change
		// between consecutive steps as the fallback.
		maneuver := maneuverFromText(text)
		if maneuver == "" && i > 0 {
			maneuver = maneuverFromBearing(stepBearingDelta(leg.Steps[i-1], step))
		}
		insType := maneuverToType(maneuver)
		if i == 0 {
			insType = models.Depart
		}
		route.Instructions = append(route.Instructions, models.Instruction{
			Type:      insType,
			Text:      text,
			DistanceM: float64(step.Distance.Meters),
			DurationS: step.Duration.Seconds(),
			Loc:       models.Coord{Lat: step.StartLocation.Lat, Lon: step.StartLocation.Lng},
		})
	}
	route.Instructions = append(route.Instructions, models.Instruction{
		Type: models.Destination,
		Text: "You have arrived at your destination",
		Loc:  models.Coord{Lat: leg.EndLocation.Lat, Lon: leg.EndLocation.Lng},
	})

	if pts, err := maps.DecodePolyline(routes[0].OverviewPolyline.Points); err == nil {
		route.Geometry = make([]models.Coord, len(pts))
		for i, p := range pts {
			route.Geometry[i] = models.Coord{Lat: p.Lat, Lon: p.Lng}
		}
	} else {
		// Degrade to instruction locations; never fail the whole route
		// over geometry decoding.
		for _, ins := range route.Instructions {
			route.Geometry = append(route.Geometry, ins.Loc)
		}
	}
	return route, nil
}

// maneuverFromText recovers a maneuver code from the leading phrase of a
// Directions instruction. Returns "" when the text is not conclusive.
func maneuverFromText(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "u-turn"):
		if strings.Contains(t, "right") {
			return "uturn-right"
		}
		return "uturn-left"
	case strings.Contains(t, "roundabout"):
		return "roundabout-left"
	case strings.HasPrefix(t, "turn left"):
		return "turn-left"
	case strings.HasPrefix(t, "turn right"):
		return "turn-right"
	case strings.HasPrefix(t, "slight left"):
		return "turn-slight-left"
	case strings.HasPrefix(t, "slight right"):
		return "turn-slight-right"
	case strings.HasPrefix(t, "sharp left"):
		return "turn-sharp-left"
	case strings.HasPrefix(t, "sharp right"):
		return "turn-sharp-right"
	case strings.HasPrefix(t, "keep left"):
		return "keep-left"
	case strings.HasPrefix(t, "keep right"):
		return "keep-right"
	case strings.HasPrefix(t, "take the ramp"):
		return "ramp-right"
	case strings.HasPrefix(t, "merge"):
		return "merge"
	case strings.HasPrefix(t, "head"), strings.HasPrefix(t, "continue"):
		return "straight"
	}
	return ""
}

// stepBearingDelta is the heading change entering a step, in degrees,
// normalized to (-180, 180]. Negative means a left turn.
func stepBearingDelta(prev, cur *maps.Step) float64 {
	in := geo.Bearing(
		models.Coord{Lat: prev.StartLocation.Lat, Lon: prev.StartLocation.Lng},
		models.Coord{Lat: prev.EndLocation.Lat, Lon: prev.EndLocation.Lng},
	)
	out := geo.Bearing(
		models.Coord{Lat: cur.StartLocation.Lat, Lon: cur.StartLocation.Lng},
		models.Coord{Lat: cur.EndLocation.Lat, Lon: cur.EndLocation.Lng},
	)
	d := out - in
	for d > 180 {
		d -= 360
	}
	for d <= -180 {
		d += 360
	}
	return d
}

func maneuverFromBearing(delta float64) string {
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs <= 20:
		return "straight"
	case abs <= 60 && delta > 0:
		return "turn-slight-right"
	case abs <= 60:
		return "turn-slight-left"
	case abs <= 135 && delta > 0:
		return "turn-right"
	case abs <= 135:
		return "turn-left"
	case delta > 0:
		return "turn-sharp-right"
	default:
		return "turn-sharp-left"
	}
}

// maneuverToType maps Google maneuver codes onto the app taxonomy.
func maneuverToType(maneuver string) models.InstructionType {
	switch maneuver {
	case "turn-left":
		return models.TurnLeft
	case "turn-right":
		return models.TurnRight
	case "turn-slight-left", "ramp-left", "fork-left", "keep-left":
		return models.TurnSlightLeft
	case "turn-slight-right", "ramp-right", "fork-right", "keep-right":
		return models.TurnSlightRight
	case "turn-sharp-left", "uturn-left":
		return models.TurnSharpLeft
	case "turn-sharp-right", "uturn-right":
		return models.TurnSharpRight
	case "roundabout-left", "roundabout-right":
		return models.Roundabout
	case "merge", "straight", "":
		return models.Straight
	default:
		return models.Straight
	}
}

// stripHTML removes the markup Google embeds in instruction text.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
