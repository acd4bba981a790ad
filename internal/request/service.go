// Package request owns the ride request state machine: creation,
// cancellation, acceptance, completion, and timeout expiry.
package request

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/pricing"
)

// DefaultTTL is how long an unscheduled request may search before the
// sweep expires it.
const DefaultTTL = 5 * time.Minute

// FareHolds is the payment collaborator. All calls are best-effort: a
// payment hiccup never blocks a state transition.
type FareHolds interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, holdID string) error
	Release(ctx context.Context, holdID string) error
}

type Service struct {
	store    Store
	holds    FareHolds // optional
	logger   *slog.Logger
	ttl      time.Duration
	currency string

	now func() time.Time // test hook
}

func NewService(store Store, holds FareHolds, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		holds:    holds,
		logger:   logger,
		ttl:      DefaultTTL,
		currency: "inr",
		now:      time.Now,
	}
}

// WithTTL overrides the searching window applied at creation.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

type CreateParams struct {
	RiderID      string
	Pickup       models.Place
	Drop         models.Place
	VehicleClass models.VehicleClass
	DistanceKm   float64
	DurationMin  float64
	Promo        *pricing.Promo
	ScheduledAt  *time.Time
	OrgOnly      bool
	OrgID        string
}

func validCoord(c models.Coord) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180 &&
		!(c.Lat == 0 && c.Lon == 0)
}

// Create validates and prices a new request. Unscheduled requests start
// searching with timeout now+ttl; scheduled ones start pending with the
// timeout anchored to the scheduled time, so the timeout is always in the
// future at creation.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.RideRequest, error) {
	if p.RiderID == "" {
		return nil, fmt.Errorf("%w: rider id required", ErrValidation)
	}
	if !validCoord(p.Pickup.Coord) || !validCoord(p.Drop.Coord) {
		return nil, fmt.Errorf("%w: pickup/drop coordinates out of range", ErrValidation)
	}
	now := s.now()
	if p.ScheduledAt != nil && p.ScheduledAt.Before(now) {
		return nil, fmt.Errorf("%w: scheduled time is in the past", ErrValidation)
	}

	surge := pricing.SurgeFor(pricing.ClassifyDemand(now))
	est, err := pricing.EstimateFare(p.VehicleClass, p.DistanceKm, p.DurationMin, surge, p.Promo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if est.Total <= 0 && est.Discount == 0 {
		return nil, fmt.Errorf("%w: fare must be positive", ErrValidation)
	}

	status := models.StatusSearching
	timeoutAt := now.Add(s.ttl)
	if p.ScheduledAt != nil {
		status = models.StatusPending
		timeoutAt = p.ScheduledAt.Add(s.ttl)
	}

	r := &models.RideRequest{
		ID:              newID(),
		RiderID:         p.RiderID,
		Pickup:          p.Pickup,
		Drop:            p.Drop,
		VehicleClass:    p.VehicleClass,
		Fare:            est.Total,
		DistanceKm:      p.DistanceKm,
		DurationMin:     p.DurationMin,
		Status:          status,
		SearchRadiusM:   models.SearchRadiusInitialM,
		TimeoutAt:       timeoutAt,
		SurgeMultiplier: est.Surge,
		Discount:        est.Discount,
		ScheduledAt:     p.ScheduledAt,
		OrgOnly:         p.OrgOnly,
		OrgID:           p.OrgID,
		CreatedAt:       now,
	}
	if p.Promo != nil {
		r.PromoCode = p.Promo.Code
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	_ = s.store.AppendEvent(ctx, &models.StateEvent{
		RequestID: r.ID, FromStatus: "", ToStatus: status, Actor: "rider", CreatedAt: now,
	})
	observability.RequestsCreatedTotal.Inc()
	s.logger.Info("ride request created", "request_id", r.ID, "rider_id", r.RiderID, "status", string(status), "fare", r.Fare)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.RideRequest, error) {
	return s.store.Get(ctx, id)
}

// Cancel is legal from any non-terminal state and requires a reason.
func (s *Service) Cancel(ctx context.Context, id, reason, actor string) error {
	if reason == "" {
		return fmt.Errorf("%w: cancellation reason required", ErrValidation)
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !models.CanTransition(r.Status, models.StatusCancelled) {
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, r.Status)
	}
	ok, err := s.store.UpdateStatus(ctx, id, r.Status, models.StatusCancelled, r.StatusVersion, StatusMutation{CancelReason: reason})
	if err != nil {
		return err
	}
	if !ok {
		// A racing match or sweep committed first.
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &models.StateEvent{
		RequestID: id, FromStatus: r.Status, ToStatus: models.StatusCancelled, Actor: actor, CreatedAt: s.now(),
	})
	s.logger.Info("ride request cancelled", "request_id", id, "reason", reason, "actor", actor)
	return nil
}

// Accept transitions matched → accepted and places a best-effort hold on
// the estimated fare.
func (s *Service) Accept(ctx context.Context, id string) error {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != models.StatusMatched {
		return fmt.Errorf("%w: accept requires matched, have %s", ErrInvalidTransition, r.Status)
	}
	ok, err := s.store.UpdateStatus(ctx, id, models.StatusMatched, models.StatusAccepted, r.StatusVersion, StatusMutation{})
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &models.StateEvent{
		RequestID: id, FromStatus: models.StatusMatched, ToStatus: models.StatusAccepted, Actor: "driver", CreatedAt: s.now(),
	})
	if s.holds != nil {
		if holdID, err := s.holds.Hold(ctx, r.Fare, s.currency, r.RiderID); err != nil {
			s.logger.Warn("fare hold failed", "request_id", id, "error", err)
		} else {
			s.logger.Info("fare held", "request_id", id, "hold_id", holdID)
		}
	}
	return nil
}

// Complete transitions accepted → completed.
func (s *Service) Complete(ctx context.Context, id string) error {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != models.StatusAccepted {
		return fmt.Errorf("%w: complete requires accepted, have %s", ErrInvalidTransition, r.Status)
	}
	ok, err := s.store.UpdateStatus(ctx, id, models.StatusAccepted, models.StatusCompleted, r.StatusVersion, StatusMutation{})
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &models.StateEvent{
		RequestID: id, FromStatus: models.StatusAccepted, ToStatus: models.StatusCompleted, Actor: "driver", CreatedAt: s.now(),
	})
	return nil
}

// ActivateScheduled moves a pending scheduled request into searching once
// its scheduled time has arrived.
func (s *Service) ActivateScheduled(ctx context.Context, id string) error {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != models.StatusPending {
		return fmt.Errorf("%w: activate requires pending, have %s", ErrInvalidTransition, r.Status)
	}
	ok, err := s.store.UpdateStatus(ctx, id, models.StatusPending, models.StatusSearching, r.StatusVersion, StatusMutation{})
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &models.StateEvent{
		RequestID: id, FromStatus: models.StatusPending, ToStatus: models.StatusSearching, Actor: "system", CreatedAt: s.now(),
	})
	return nil
}

// ExpireSweep batch-expires every searching request past its timeout.
// Safe to run concurrently from multiple workers: the predicate update
// makes re-expiring an already-expired row a silent no-op.
func (s *Service) ExpireSweep(ctx context.Context) (int, error) {
	n, err := s.store.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		observability.RequestsExpiredTotal.Add(float64(n))
		s.logger.Info("expired stale ride requests", "count", n)
	}
	return n, nil
}

// RunSweeper runs ExpireSweep on a fixed interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireSweep(ctx); err != nil {
				s.logger.Error("expire sweep failed", "error", err)
			}
		}
	}
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
