package discovery

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisGeo implements Finder using Redis GEO commands plus a metadata
// hash per driver. Distances come back from GEOSEARCH already sorted
// ascending; the final re-sort only settles ties deterministically.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key}
}

func NewRedisGeoWithClient(c *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: c, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, d models.Driver) error {
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: d.Loc.Lon,
		Latitude:  d.Loc.Lat,
		Name:      d.ID,
	}).Err(); err != nil {
		return err
	}
	return r.client.HSet(ctx, MetaKey(d.ID), RegistrationMeta(d)).Err()
}

// RegistrationMeta is the full per-driver hash written when a driver
// registers or refreshes through the API.
func RegistrationMeta(d models.Driver) map[string]interface{} {
	return map[string]interface{}{
		"rating":        strconv.FormatFloat(d.Rating, 'f', 2, 64),
		"vehicle_class": string(d.VehicleClass),
		"org_id":        d.OrgID,
		"online":        strconv.FormatBool(d.Online),
	}
}

// LocationMeta is the subset of the hash a position tick may refresh.
// Every value is a pre-formatted string so the redis wire encoding
// matches what driverFromMeta parses; writing raw Go bools here would
// come back as "1", not "true". Registration fields (rating,
// vehicle_class, org_id) are deliberately absent so a partial update
// never clobbers them; a driver fed only by the location stream still
// needs one registration through the API to pass filtered queries.
func LocationMeta(loc models.LiveLocation) map[string]interface{} {
	return map[string]interface{}{
		"heading":   strconv.FormatFloat(loc.Heading, 'f', 1, 64),
		"speed_mps": strconv.FormatFloat(loc.SpeedMps, 'f', 2, 64),
		"updated":   loc.Timestamp.UTC().Format(time.RFC3339Nano),
		"online":    strconv.FormatBool(true),
	}
}

// driverFromMeta rebuilds the driver projection from its metadata hash.
func driverFromMeta(id string, loc models.Coord, m map[string]string) models.Driver {
	d := models.Driver{ID: id, Loc: loc}
	if v, ok := m["rating"]; ok {
		if fl, err := strconv.ParseFloat(v, 64); err == nil {
			d.Rating = fl
		}
	}
	d.VehicleClass = models.VehicleClass(m["vehicle_class"])
	d.OrgID = m["org_id"]
	d.Online = m["online"] == "true"
	return d
}

func (r *RedisGeo) Remove(ctx context.Context, driverID string) error {
	if err := r.client.ZRem(ctx, r.key, driverID).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, MetaKey(driverID)).Err()
}

func (r *RedisGeo) Nearby(ctx context.Context, center models.Coord, radiusM float64, f Filters) ([]models.DriverCandidate, error) {
	res, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lon,
			Latitude:   center.Lat,
			Radius:     radiusM,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverCandidate, 0, len(res))
	for _, g := range res {
		d := models.Driver{ID: g.Name, Loc: models.Coord{Lat: g.Latitude, Lon: g.Longitude}}
		if m, err := r.client.HGetAll(ctx, MetaKey(g.Name)).Result(); err == nil {
			d = driverFromMeta(g.Name, d.Loc, m)
		}
		if !eligible(d, f) {
			continue
		}
		out = append(out, models.DriverCandidate{
			DriverID:     d.ID,
			DistanceM:    g.Dist, // meters, matches RadiusUnit
			Rating:       d.Rating,
			VehicleClass: d.VehicleClass,
			Loc:          d.Loc,
		})
	}
	SortCandidates(out)
	return out, nil
}

// MetaKey is the redis hash key holding one driver's metadata. Shared
// with the location stream consumer, which refreshes a subset of it.
func MetaKey(id string) string { return "driver:meta:" + id }
