package request

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrNotFound          = errors.New("ride request not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("ride request state conflict")
	ErrValidation        = errors.New("invalid ride request")
)

// StatusMutation carries the optional fields written alongside a status
// change.
type StatusMutation struct {
	DriverID     string
	CancelReason string
}

// Store defines persistence for ride requests. UpdateStatus is a
// compare-and-swap on (status, status_version): it returns false, nil when
// the row exists but the expected state has moved on, which callers
// surface as ErrConflict.
type Store interface {
	Create(ctx context.Context, r *models.RideRequest) error
	Get(ctx context.Context, id string) (*models.RideRequest, error)
	UpdateStatus(ctx context.Context, id string, from, to models.Status, version int, m StatusMutation) (bool, error)
	// GrowSearchRadius persists a widened radius; the radius never shrinks.
	GrowSearchRadius(ctx context.Context, id string, radiusM float64) error
	// ExpireDue transitions every searching request whose timeout has
	// passed. Idempotent under concurrent invocation.
	ExpireDue(ctx context.Context, now time.Time) (int, error)
	// ListSearching returns up to limit requests currently in searching,
	// oldest first, for the match scheduler.
	ListSearching(ctx context.Context, limit int) ([]*models.RideRequest, error)
	// ListPendingDue returns pending scheduled requests whose scheduled
	// time is at or before now.
	ListPendingDue(ctx context.Context, now time.Time, limit int) ([]*models.RideRequest, error)
	AppendEvent(ctx context.Context, e *models.StateEvent) error
}

// MemoryStore keeps requests in a mutex-guarded map with the same CAS
// semantics as the Postgres store. Used in tests and credential-less
// local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.RideRequest
	events   []models.StateEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*models.RideRequest)}
}

func (m *MemoryStore) Create(_ context.Context, r *models.RideRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, from, to models.Status, version int, mut StatusMutation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != from || r.StatusVersion != version {
		return false, nil
	}
	now := time.Now()
	r.Status = to
	r.StatusVersion++
	if mut.DriverID != "" {
		r.DriverID = mut.DriverID
	}
	if mut.CancelReason != "" {
		r.CancelReason = mut.CancelReason
	}
	switch to {
	case models.StatusMatched:
		r.MatchedAt = &now
	case models.StatusAccepted:
		r.AcceptedAt = &now
	case models.StatusCompleted:
		r.CompletedAt = &now
	case models.StatusCancelled:
		r.CancelledAt = &now
	}
	return true, nil
}

func (m *MemoryStore) GrowSearchRadius(_ context.Context, id string, radiusM float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if radiusM > r.SearchRadiusM {
		r.SearchRadiusM = radiusM
	}
	return nil
}

func (m *MemoryStore) ExpireDue(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Status == models.StatusSearching && r.TimeoutAt.Before(now) {
			r.Status = models.StatusExpired
			r.StatusVersion++
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListSearching(_ context.Context, limit int) ([]*models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.RideRequest, 0, limit)
	for _, r := range m.requests {
		if r.Status != models.StatusSearching {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListPendingDue(_ context.Context, now time.Time, limit int) ([]*models.RideRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.RideRequest, 0, limit)
	for _, r := range m.requests {
		if r.Status != models.StatusPending || r.ScheduledAt == nil || r.ScheduledAt.After(now) {
			continue
		}
		cp := *r
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *models.StateEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

// Events returns a copy of the transition log, for tests.
func (m *MemoryStore) Events() []models.StateEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.StateEvent, len(m.events))
	copy(out, m.events)
	return out
}
