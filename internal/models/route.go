package models

// InstructionType is the maneuver taxonomy used throughout the app.
// Provider-specific maneuver codes are mapped into these at the boundary.
type InstructionType string

const (
	TurnLeft        InstructionType = "turn-left"
	TurnRight       InstructionType = "turn-right"
	TurnSlightLeft  InstructionType = "turn-slight-left"
	TurnSlightRight InstructionType = "turn-slight-right"
	TurnSharpLeft   InstructionType = "turn-sharp-left"
	TurnSharpRight  InstructionType = "turn-sharp-right"
	Straight        InstructionType = "straight"
	Roundabout      InstructionType = "roundabout"
	Depart          InstructionType = "depart"
	Destination     InstructionType = "destination"
)

type Instruction struct {
	Type      InstructionType `json:"type"`
	Text      string          `json:"text"`
	DistanceM float64         `json:"distance_m"`
	DurationS float64         `json:"duration_s"`
	Loc       Coord           `json:"loc"`
}

// NavigationRoute is owned by the active trip leg and replaced wholesale
// on reroute, never merged.
type NavigationRoute struct {
	Instructions []Instruction `json:"instructions"`
	Geometry     []Coord       `json:"geometry"`
	DistanceM    float64       `json:"distance_m"`
	DurationS    float64       `json:"duration_s"`
	Synthetic    bool          `json:"synthetic,omitempty"` // true when built from the straight-line fallback
}
