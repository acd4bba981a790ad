package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func TestEstimateFareWorkedExample(t *testing.T) {
	// car: base 50, perKm 15, perMin 2; 10 km / 20 min at surge 1.0
	// → subtotal 240, fee 12, tax on 252 = 12.6, total rounds to 265.
	est, err := EstimateFare(models.VehicleCar, 10, 20, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if est.Subtotal != 240 {
		t.Errorf("subtotal = %d, want 240", est.Subtotal)
	}
	if est.PlatformFee != 12 {
		t.Errorf("fee = %d, want 12", est.PlatformFee)
	}
	if est.Tax != 13 { // 12.6 rounded for display
		t.Errorf("tax = %d, want 13", est.Tax)
	}
	if est.Total != 265 {
		t.Errorf("total = %d, want 265", est.Total)
	}
}

func TestEstimateFareMinFare(t *testing.T) {
	// Tiny trip: 0.5 km, 2 min → base 50+7.5+4 = 61.5 < minFare 80.
	est, err := EstimateFare(models.VehicleCar, 0.5, 2, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if est.Subtotal != 80 {
		t.Errorf("subtotal = %d, want minFare 80", est.Subtotal)
	}
}

func TestEstimateFareSurgeFloor(t *testing.T) {
	low, err := EstimateFare(models.VehicleCar, 10, 20, 0.5, nil)
	if err != nil {
		t.Fatal(err)
	}
	base, err := EstimateFare(models.VehicleCar, 10, 20, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if low.Total != base.Total {
		t.Errorf("surge below 1.0 must clamp: %d vs %d", low.Total, base.Total)
	}
	if low.Surge != 1.0 {
		t.Errorf("surge = %f, want 1.0", low.Surge)
	}
}

func TestEstimateFareSurgeApplied(t *testing.T) {
	est, err := EstimateFare(models.VehicleCar, 10, 20, 2.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	// 240*2 = 480 → fee 24 → tax 25.2 → 529.2 → 529.
	if est.Total != 529 {
		t.Errorf("total = %d, want 529", est.Total)
	}
}

func TestEstimateFareUnknownClass(t *testing.T) {
	if _, err := EstimateFare("rickshaw", 1, 1, 1, nil); !errors.Is(err, ErrUnknownVehicleClass) {
		t.Fatalf("expected ErrUnknownVehicleClass, got %v", err)
	}
}

func TestPromoPercentWithCap(t *testing.T) {
	promo := &Promo{Code: "SAVE20", Percent: 20, MaxDiscount: 40}
	est, err := EstimateFare(models.VehicleCar, 10, 20, 1.0, promo)
	if err != nil {
		t.Fatal(err)
	}
	// 20% of 265 is 53, capped to 40.
	if est.Discount != 40 {
		t.Errorf("discount = %d, want 40", est.Discount)
	}
	if est.Total != 225 {
		t.Errorf("total = %d, want 225", est.Total)
	}
}

func TestPromoFixedNeverExceedsTotal(t *testing.T) {
	promo := &Promo{Code: "FLAT500", Fixed: 500}
	est, err := EstimateFare(models.VehicleCar, 10, 20, 1.0, promo)
	if err != nil {
		t.Fatal(err)
	}
	if est.Discount != 265 || est.Total != 0 {
		t.Errorf("discount = %d total = %d, want full discount to zero", est.Discount, est.Total)
	}
}

func TestPromoMinAmountRejected(t *testing.T) {
	promo := &Promo{Code: "BIGTRIP", Percent: 10, MinAmount: 1000}
	if _, err := EstimateFare(models.VehicleCar, 10, 20, 1.0, promo); !errors.Is(err, ErrPromoMinAmount) {
		t.Fatalf("expected ErrPromoMinAmount, got %v", err)
	}
}

func TestClassifyDemand(t *testing.T) {
	cases := []struct {
		ts   time.Time
		want DemandLevel
	}{
		{time.Date(2025, 3, 8, 22, 0, 0, 0, time.UTC), DemandVeryHigh}, // saturday night
		{time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC), DemandHigh},    // monday morning rush
		{time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC), DemandHigh},    // monday evening rush
		{time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC), DemandMedium},  // monday midday
		{time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC), DemandLow},      // monday pre-dawn
	}
	for _, tc := range cases {
		if got := ClassifyDemand(tc.ts); got != tc.want {
			t.Errorf("ClassifyDemand(%v) = %s, want %s", tc.ts, got, tc.want)
		}
	}
}

func TestSurgeForTable(t *testing.T) {
	want := map[DemandLevel]float64{DemandLow: 1.0, DemandMedium: 1.2, DemandHigh: 1.5, DemandVeryHigh: 2.0}
	for level, m := range want {
		if got := SurgeFor(level); got != m {
			t.Errorf("SurgeFor(%s) = %f, want %f", level, got, m)
		}
	}
	if got := SurgeFor("unknown"); got != 1.0 {
		t.Errorf("unknown level should default to 1.0, got %f", got)
	}
}
