package models

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusSearching Status = "searching"
	StatusMatched   Status = "matched"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// AllowedTransitions encodes the request state flow. Terminal states have
// no outgoing edges.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusSearching, StatusCancelled, StatusExpired},
	StatusSearching: {StatusMatched, StatusCancelled, StatusExpired},
	StatusMatched:   {StatusAccepted, StatusCancelled, StatusExpired},
	StatusAccepted:  {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

const (
	// SearchRadiusInitialM is the radius of the first discovery query.
	SearchRadiusInitialM = 2000.0
	// SearchRadiusStepM is added every time a discovery query comes back empty.
	SearchRadiusStepM = 2000.0
	// SearchRadiusMaxM caps radius growth.
	SearchRadiusMaxM = 20000.0
)

type RideRequest struct {
	ID              string       `json:"id"`
	RiderID         string       `json:"rider_id"`
	Pickup          Place        `json:"pickup"`
	Drop            Place        `json:"drop"`
	VehicleClass    VehicleClass `json:"vehicle_class"`
	Fare            int64        `json:"fare"` // smallest currency unit
	DistanceKm      float64      `json:"distance_km"`
	DurationMin     float64      `json:"duration_min"`
	Status          Status       `json:"status"`
	StatusVersion   int          `json:"status_version"`
	DriverID        string       `json:"driver_id,omitempty"`
	SearchRadiusM   float64      `json:"search_radius_m"` // monotone non-decreasing
	TimeoutAt       time.Time    `json:"timeout_at"`
	SurgeMultiplier float64      `json:"surge_multiplier"`
	PromoCode       string       `json:"promo_code,omitempty"`
	Discount        int64        `json:"discount,omitempty"`
	ScheduledAt     *time.Time   `json:"scheduled_at,omitempty"`
	CancelReason    string       `json:"cancel_reason,omitempty"`
	OrgOnly         bool         `json:"org_only,omitempty"`
	OrgID           string       `json:"org_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	MatchedAt       *time.Time   `json:"matched_at,omitempty"`
	AcceptedAt      *time.Time   `json:"accepted_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
}

// StateEvent is one row of the append-only per-request transition log.
type StateEvent struct {
	RequestID  string    `json:"request_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Actor      string    `json:"actor"` // rider, driver, system
	CreatedAt  time.Time `json:"created_at"`
}
