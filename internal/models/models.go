package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Place is a coordinate plus the human-readable label shown in the app.
type Place struct {
	Coord
	Label string `json:"label,omitempty"`
}

type VehicleClass string

const (
	VehicleBike VehicleClass = "bike"
	VehicleCar  VehicleClass = "car"
	VehicleVan  VehicleClass = "van"
)

type Driver struct {
	ID           string       `json:"id"`
	Loc          Coord        `json:"loc"`
	Heading      float64      `json:"heading,omitempty"`
	SpeedMps     float64      `json:"speed_mps,omitempty"`
	Rating       float64      `json:"rating"` // 0..5
	VehicleClass VehicleClass `json:"vehicle_class"`
	OrgID        string       `json:"org_id,omitempty"`
	Online       bool         `json:"online"`
	Updated      time.Time    `json:"updated"`
}

// DriverCandidate is the transient projection returned by a discovery
// query. It is never persisted.
type DriverCandidate struct {
	DriverID     string       `json:"driver_id"`
	DistanceM    float64      `json:"distance_m"`
	Rating       float64      `json:"rating"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	Loc          Coord        `json:"loc"`
}

// LiveLocation is one record of the append-only driver position stream.
// The record with the greatest Timestamp is authoritative; consumers must
// drop anything older than what they already hold.
type LiveLocation struct {
	TripID    string    `json:"trip_id,omitempty"`
	DriverID  string    `json:"driver_id"`
	Loc       Coord     `json:"loc"`
	Heading   float64   `json:"heading"`
	SpeedMps  float64   `json:"speed_mps"`
	Timestamp time.Time `json:"timestamp"`
}
