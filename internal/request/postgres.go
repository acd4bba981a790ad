package request

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Create(ctx context.Context, r *models.RideRequest) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ride_requests(
			id, rider_id, pickup_lat, pickup_lon, pickup_label,
			drop_lat, drop_lon, drop_label, vehicle_class,
			fare, distance_km, duration_min, status, status_version,
			search_radius_m, timeout_at, surge_multiplier,
			promo_code, discount, scheduled_at, org_only, org_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		r.ID, r.RiderID, r.Pickup.Lat, r.Pickup.Lon, r.Pickup.Label,
		r.Drop.Lat, r.Drop.Lon, r.Drop.Label, string(r.VehicleClass),
		r.Fare, r.DistanceKm, r.DurationMin, string(r.Status), r.StatusVersion,
		r.SearchRadiusM, r.TimeoutAt, r.SurgeMultiplier,
		nullStr(r.PromoCode), r.Discount, r.ScheduledAt, r.OrgOnly, nullStr(r.OrgID), r.CreatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*models.RideRequest, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, rider_id, pickup_lat, pickup_lon, pickup_label,
		       drop_lat, drop_lon, drop_label, vehicle_class,
		       fare, distance_km, duration_min, status, status_version,
		       driver_id, search_radius_m, timeout_at, surge_multiplier,
		       promo_code, discount, scheduled_at, cancel_reason, org_only, org_id,
		       created_at, matched_at, accepted_at, completed_at, cancelled_at
		FROM ride_requests WHERE id = $1`, id)

	var r models.RideRequest
	var driverID, promoCode, cancelReason, orgID sql.NullString
	var scheduledAt, matchedAt, acceptedAt, completedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.RiderID, &r.Pickup.Lat, &r.Pickup.Lon, &r.Pickup.Label,
		&r.Drop.Lat, &r.Drop.Lon, &r.Drop.Label, &r.VehicleClass,
		&r.Fare, &r.DistanceKm, &r.DurationMin, &r.Status, &r.StatusVersion,
		&driverID, &r.SearchRadiusM, &r.TimeoutAt, &r.SurgeMultiplier,
		&promoCode, &r.Discount, &scheduledAt, &cancelReason, &r.OrgOnly, &orgID,
		&r.CreatedAt, &matchedAt, &acceptedAt, &completedAt, &cancelledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.DriverID = driverID.String
	r.PromoCode = promoCode.String
	r.CancelReason = cancelReason.String
	r.OrgID = orgID.String
	r.ScheduledAt = timePtr(scheduledAt)
	r.MatchedAt = timePtr(matchedAt)
	r.AcceptedAt = timePtr(acceptedAt)
	r.CompletedAt = timePtr(completedAt)
	r.CancelledAt = timePtr(cancelledAt)
	return &r, nil
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to models.Status, version int, m StatusMutation) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE ride_requests
		SET status = $1,
		    status_version = status_version + 1,
		    driver_id = COALESCE(NULLIF($2, ''), driver_id),
		    cancel_reason = COALESCE(NULLIF($3, ''), cancel_reason),
		    matched_at   = CASE WHEN $1 = 'matched'   THEN NOW() ELSE matched_at END,
		    accepted_at  = CASE WHEN $1 = 'accepted'  THEN NOW() ELSE accepted_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $4 AND status = $5 AND status_version = $6`,
		string(to), m.DriverID, m.CancelReason, id, string(from), version)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) GrowSearchRadius(ctx context.Context, id string, radiusM float64) error {
	// The predicate keeps the radius monotone even under racing growers.
	_, err := p.db.ExecContext(ctx, `
		UPDATE ride_requests SET search_radius_m = $1
		WHERE id = $2 AND search_radius_m < $1`, radiusM, id)
	return err
}

func (p *PostgresStore) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE ride_requests
		SET status = 'expired', status_version = status_version + 1
		WHERE status = 'searching' AND timeout_at < $1`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *PostgresStore) ListSearching(ctx context.Context, limit int) ([]*models.RideRequest, error) {
	return p.list(ctx, `
		SELECT id FROM ride_requests
		WHERE status = 'searching'
		ORDER BY created_at ASC LIMIT $1`, limit)
}

func (p *PostgresStore) ListPendingDue(ctx context.Context, now time.Time, limit int) ([]*models.RideRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id FROM ride_requests
		WHERE status = 'pending' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY scheduled_at ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return p.collect(ctx, rows)
}

func (p *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]*models.RideRequest, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return p.collect(ctx, rows)
}

func (p *PostgresStore) collect(ctx context.Context, rows *sql.Rows) ([]*models.RideRequest, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*models.RideRequest, 0, len(ids))
	for _, id := range ids {
		r, err := p.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *PostgresStore) AppendEvent(ctx context.Context, e *models.StateEvent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ride_request_events(request_id, from_status, to_status, actor, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		e.RequestID, string(e.FromStatus), string(e.ToStatus), e.Actor, e.CreatedAt)
	return err
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
