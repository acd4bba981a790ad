package main

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/discovery"
	"github.com/example/ride-dispatch/internal/models"
)

var errBadLocation = errors.New("location out of bounds")

func validateLocation(loc models.LiveLocation) error {
	if loc.DriverID == "" {
		return errors.New("driver id required")
	}
	if loc.Loc.Lat < -90 || loc.Loc.Lat > 90 || loc.Loc.Lon < -180 || loc.Loc.Lon > 180 {
		return errBadLocation
	}
	if loc.Timestamp.IsZero() {
		return errors.New("timestamp required")
	}
	return nil
}

// GeoUpdater is the subset of redis operations the consumer needs,
// narrowed so tests can fake it.
type GeoUpdater interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisUpdater struct{ c *redis.Client }

func (r *redisUpdater) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	_, err := r.c.GeoAdd(ctx, key, loc).Result()
	return err
}

func (r *redisUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := r.c.HSet(ctx, key, values).Result()
	return err
}

// updateGeoWithRetry writes the position and its metadata with a small
// exponential backoff per attempt.
func updateGeoWithRetry(ctx context.Context, rc GeoUpdater, geoKey string, loc models.LiveLocation, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		if err := rc.GeoAdd(ctx, geoKey, &redis.GeoLocation{
			Longitude: loc.Loc.Lon,
			Latitude:  loc.Loc.Lat,
			Name:      loc.DriverID,
		}); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		if err := rc.HSet(ctx, discovery.MetaKey(loc.DriverID), discovery.LocationMeta(loc)); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return nil
	}
	return nil
}
