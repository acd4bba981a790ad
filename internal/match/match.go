// Package match assigns the nearest eligible driver to a searching ride
// request via an atomic claim.
package match

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/discovery"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/nav"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/request"
)

// ErrConflict aliases the request package's conflict error so callers can
// errors.Is against either package.
var ErrConflict = request.ErrConflict

// Offer is pushed to the winning driver's device.
type Offer struct {
	RequestID string        `json:"request_id"`
	DriverID  string        `json:"driver_id"`
	Pickup    models.Place  `json:"pickup"`
	Drop      models.Place  `json:"drop"`
	Fare      int64         `json:"fare"`
	ETA       time.Duration `json:"eta"`
}

// Dispatcher delivers a match offer to a driver. Best-effort.
type Dispatcher interface {
	Offer(ctx context.Context, driverID string, o Offer) error
}

type Engine struct {
	Store    request.Store
	Finder   discovery.Finder
	Claims   DriverClaims
	Dispatch Dispatcher  // optional
	ETA      nav.Clients // optional, for the offer's pickup ETA
	Logger   *slog.Logger

	// OnMatched, when set, runs after a request is matched. Used to
	// start proximity tracking toward the pickup point.
	OnMatched func(r *models.RideRequest, driverID string)
}

// AutoMatch runs one match round for a request. Returns (false, nil) when
// the request is not searching or no candidate is in range — expected
// negative outcomes the scheduler retries. A lost race for the nearest
// candidate returns ErrConflict; the caller re-runs discovery instead of
// retrying the same driver.
func (e *Engine) AutoMatch(ctx context.Context, requestID string) (bool, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	r, err := e.Store.Get(ctx, requestID)
	if err != nil {
		return false, err
	}
	if r.Status != models.StatusSearching {
		return false, nil
	}

	filters := discovery.Filters{VehicleClass: r.VehicleClass}
	if r.OrgOnly {
		filters.OrgID = r.OrgID
	}
	cands, err := e.Finder.Nearby(ctx, r.Pickup.Coord, r.SearchRadiusM, filters)
	if err != nil {
		return false, err
	}
	if len(cands) == 0 {
		observability.MatchEmptyTotal.Inc()
		next := r.SearchRadiusM + models.SearchRadiusStepM
		if next > models.SearchRadiusMaxM {
			next = models.SearchRadiusMaxM
		}
		if next > r.SearchRadiusM {
			if err := e.Store.GrowSearchRadius(ctx, requestID, next); err != nil {
				return false, err
			}
			e.logger().Debug("no candidates, radius widened", "request_id", requestID, "radius_m", next)
		}
		return false, nil
	}

	// Candidates are distance-sorted; walk past drivers already claimed
	// by a competing match so one busy driver cannot starve the area.
	var best models.DriverCandidate
	claimed := false
	for _, cand := range cands {
		ok, err := e.Claims.Claim(ctx, cand.DriverID, requestID)
		if err != nil {
			return false, err
		}
		if ok {
			best = cand
			claimed = true
			break
		}
	}
	if !claimed {
		observability.MatchConflictsTotal.Inc()
		return false, ErrConflict
	}

	ok, err := e.Store.UpdateStatus(ctx, requestID, models.StatusSearching, models.StatusMatched, r.StatusVersion, request.StatusMutation{DriverID: best.DriverID})
	if err != nil {
		_ = e.Claims.Release(ctx, best.DriverID)
		return false, err
	}
	if !ok {
		// Request moved on under us (cancel or competing match won).
		_ = e.Claims.Release(ctx, best.DriverID)
		observability.MatchConflictsTotal.Inc()
		return false, ErrConflict
	}

	_ = e.Store.AppendEvent(ctx, &models.StateEvent{
		RequestID: requestID, FromStatus: models.StatusSearching, ToStatus: models.StatusMatched,
		Actor: "system", CreatedAt: time.Now(),
	})
	observability.MatchesTotal.Inc()

	if e.OnMatched != nil {
		e.OnMatched(r, best.DriverID)
	}

	if e.Dispatch != nil {
		offer := Offer{
			RequestID: requestID,
			DriverID:  best.DriverID,
			Pickup:    r.Pickup,
			Drop:      r.Drop,
			Fare:      r.Fare,
			ETA:       e.pickupETA(ctx, best.Loc, r.Pickup.Coord),
		}
		if err := e.Dispatch.Offer(ctx, best.DriverID, offer); err != nil {
			e.logger().Warn("offer dispatch failed", "request_id", requestID, "driver_id", best.DriverID, "error", err)
		}
	}
	e.logger().Info("request matched", "request_id", requestID, "driver_id", best.DriverID, "distance_m", best.DistanceM)
	return true, nil
}

func (e *Engine) pickupETA(ctx context.Context, from, to models.Coord) time.Duration {
	if e.ETA == nil {
		return nav.NaiveETA(from, to)
	}
	return e.ETA.ETA(ctx, from, to)
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Scheduler drives match rounds on a fixed tick, decoupled from any UI
// refresh cycle. Conflicts simply leave the request for the next tick,
// which re-runs discovery.
type Scheduler struct {
	Engine   *Engine
	Requests *request.Service
	Interval time.Duration
	Batch    int
}

func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	batch := s.Batch
	if batch <= 0 {
		batch = 32
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, batch)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, batch int) {
	// Promote due scheduled requests first so they enter this round.
	if due, err := s.Engine.Store.ListPendingDue(ctx, time.Now(), batch); err == nil {
		for _, r := range due {
			if err := s.Requests.ActivateScheduled(ctx, r.ID); err != nil && !errors.Is(err, request.ErrConflict) {
				s.Engine.logger().Warn("scheduled activation failed", "request_id", r.ID, "error", err)
			}
		}
	}

	searching, err := s.Engine.Store.ListSearching(ctx, batch)
	if err != nil {
		s.Engine.logger().Error("listing searching requests failed", "error", err)
		return
	}
	for _, r := range searching {
		if _, err := s.Engine.AutoMatch(ctx, r.ID); err != nil && !errors.Is(err, ErrConflict) {
			s.Engine.logger().Warn("auto match failed", "request_id", r.ID, "error", err)
		}
	}
}
