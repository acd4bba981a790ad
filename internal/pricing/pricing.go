// Package pricing computes fare estimates. Everything here is pure
// computation; rates come from a static table and demand from the clock.
package pricing

import (
	"errors"
	"math"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrUnknownVehicleClass = errors.New("unknown vehicle class")
	ErrPromoMinAmount      = errors.New("fare below promo minimum amount")
	ErrBadInput            = errors.New("distance and duration must be non-negative")
)

const (
	platformFeeRate = 0.05
	taxRate         = 0.05
)

type Rate struct {
	BaseFare  float64
	PerKm     float64
	PerMinute float64
	MinFare   float64
}

// DefaultRates is the built-in rate card keyed by vehicle class.
var DefaultRates = map[models.VehicleClass]Rate{
	models.VehicleBike: {BaseFare: 25, PerKm: 8, PerMinute: 1, MinFare: 40},
	models.VehicleCar:  {BaseFare: 50, PerKm: 15, PerMinute: 2, MinFare: 80},
	models.VehicleVan:  {BaseFare: 80, PerKm: 22, PerMinute: 3, MinFare: 130},
}

type DemandLevel string

const (
	DemandLow      DemandLevel = "low"
	DemandMedium   DemandLevel = "medium"
	DemandHigh     DemandLevel = "high"
	DemandVeryHigh DemandLevel = "very_high"
)

var surgeByDemand = map[DemandLevel]float64{
	DemandLow:      1.0,
	DemandMedium:   1.2,
	DemandHigh:     1.5,
	DemandVeryHigh: 2.0,
}

// SurgeFor returns the multiplier for a demand level, never below 1.0.
func SurgeFor(level DemandLevel) float64 {
	if m, ok := surgeByDemand[level]; ok {
		return m
	}
	return 1.0
}

// ClassifyDemand is a coarse time-of-day heuristic standing in for a real
// demand signal: weekend nights peak, commute windows run high, business
// hours medium, everything else low.
func ClassifyDemand(t time.Time) DemandLevel {
	hour := t.Hour()
	weekend := t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
	switch {
	case weekend && (hour >= 18 || hour < 2):
		return DemandVeryHigh
	case (hour >= 8 && hour < 10) || (hour >= 17 && hour < 20):
		return DemandHigh
	case hour >= 10 && hour < 17:
		return DemandMedium
	default:
		return DemandLow
	}
}

// Promo describes a discount code. Percent and Fixed are mutually
// exclusive; MaxDiscount caps percentage promos and MinAmount rejects the
// promo outright on cheap fares.
type Promo struct {
	Code        string
	Percent     float64
	Fixed       int64
	MaxDiscount int64
	MinAmount   int64
}

// Estimate is the full fare breakdown. All amounts are whole currency
// units, rounded once at the end.
type Estimate struct {
	Subtotal    int64   `json:"subtotal"`
	PlatformFee int64   `json:"platform_fee"`
	Tax         int64   `json:"tax"`
	Discount    int64   `json:"discount"`
	Total       int64   `json:"total"`
	Surge       float64 `json:"surge_multiplier"`
}

// EstimateFare prices a trip: max(minFare, base + perKm·km + perMin·min),
// times surge, plus a 5% platform fee on the surged subtotal, plus 5% tax
// on (subtotal+fee), rounded to the nearest currency unit. An optional
// promo is applied last and never pushes the total below zero.
func EstimateFare(class models.VehicleClass, distanceKm, durationMin, surge float64, promo *Promo) (Estimate, error) {
	rate, ok := DefaultRates[class]
	if !ok {
		return Estimate{}, ErrUnknownVehicleClass
	}
	if distanceKm < 0 || durationMin < 0 {
		return Estimate{}, ErrBadInput
	}
	if surge < 1.0 {
		surge = 1.0
	}

	base := rate.BaseFare + rate.PerKm*distanceKm + rate.PerMinute*durationMin
	if base < rate.MinFare {
		base = rate.MinFare
	}
	subtotal := base * surge
	fee := subtotal * platformFeeRate
	tax := (subtotal + fee) * taxRate
	total := int64(math.Round(subtotal + fee + tax))

	est := Estimate{
		Subtotal:    int64(math.Round(subtotal)),
		PlatformFee: int64(math.Round(fee)),
		Tax:         int64(math.Round(tax)),
		Total:       total,
		Surge:       surge,
	}
	if promo == nil {
		return est, nil
	}

	if total < promo.MinAmount {
		return Estimate{}, ErrPromoMinAmount
	}
	var discount int64
	if promo.Percent > 0 {
		discount = int64(math.Round(float64(total) * promo.Percent / 100))
		if promo.MaxDiscount > 0 && discount > promo.MaxDiscount {
			discount = promo.MaxDiscount
		}
	} else {
		discount = promo.Fixed
	}
	if discount > total {
		discount = total
	}
	est.Discount = discount
	est.Total = total - discount
	return est, nil
}
