package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/discovery"
	"github.com/example/ride-dispatch/internal/geofence"
	"github.com/example/ride-dispatch/internal/httpapi"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/match"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/nav"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/request"
	"github.com/example/ride-dispatch/internal/track"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations && cfg.PGDSN != "" {
		if err := runMigrations(cfg.PGDSN, logger); err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	// Request store: postgres when configured, in-memory otherwise.
	var store request.Store
	if cfg.PGDSN != "" {
		ps, err := request.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		store = request.NewMemoryStore()
		logger.Warn("PG_DSN not set, using in-memory request store")
	}

	var holds request.FareHolds
	if cfg.StripeAPIKey != "" {
		holds = payments.NewStripeHolds(cfg.StripeAPIKey)
	}

	requests := request.NewService(store, holds, logging.Component(logger, "request")).WithTTL(cfg.RequestTTL)

	// Driver discovery: redis geo set when configured, in-memory otherwise.
	var finder discovery.Finder
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		finder = discovery.NewRedisGeoWithClient(redisClient, cfg.RedisGeoKey)
	} else {
		finder = discovery.NewIndex()
		logger.Warn("REDIS_ADDR not set, using in-memory driver index")
	}

	var claims match.DriverClaims
	if redisClient != nil {
		claims = match.NewRedisClaims(redisClient, cfg.ClaimTTL)
	} else {
		claims = match.NewMemoryClaims()
	}

	// Navigation and ETA.
	var provider nav.Provider
	if cfg.GoogleMapsAPIKey != "" {
		gp, err := nav.NewGoogleProvider(cfg.GoogleMapsAPIKey)
		if err != nil {
			logger.Error("google maps client init failed", "error", err)
			os.Exit(1)
		}
		provider = gp
	}
	navEngine := &nav.Engine{Provider: provider, Logger: logging.Component(logger, "nav")}

	var etaClient nav.ETAClient
	if cfg.OSRMEndpoint != "" {
		etaClient = nav.NewOSRMClient(cfg.OSRMEndpoint)
	}
	eta := &nav.ETAService{Client: etaClient, Cache: nav.NewCache(time.Minute)}

	// Proximity notifications.
	var notifier notify.Notifier = notify.Nop{}
	if cfg.FCMEndpoint != "" {
		notifier = notify.NewFCMNotifier(cfg.FCMEndpoint, cfg.FCMServerKey, logging.Component(logger, "notify"))
	}
	tracker := geofence.NewTracker(geofence.NewEvaluator(notifier))

	hub := track.NewHub()
	sessions := track.NewDriverSessions(logging.Component(logger, "track"))

	var producer httpapi.LocationPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := track.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		producer = kp
	}

	engine := &match.Engine{
		Store:    store,
		Finder:   finder,
		Claims:   claims,
		Dispatch: sessions,
		ETA:      eta,
		Logger:   logging.Component(logger, "match"),
		OnMatched: func(r *models.RideRequest, driverID string) {
			tracker.SetTarget(driverID, geofence.Target{
				TripID:  r.ID,
				RiderID: r.RiderID,
				Coord:   r.Pickup.Coord,
			})
		},
	}

	go requests.RunSweeper(ctx, cfg.SweepInterval)
	scheduler := &match.Scheduler{
		Engine:   engine,
		Requests: requests,
		Interval: cfg.MatchInterval,
		Batch:    cfg.MatchBatch,
	}
	go scheduler.Run(ctx)

	api := httpapi.NewServer(httpapi.Deps{
		Requests: requests,
		Matcher:  engine,
		Finder:   finder,
		Hub:      hub,
		Sessions: sessions,
		Producer: producer,
		Tracker:  tracker,
		Nav:      navEngine,
		Logger:   logging.Component(logger, "http"),
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func runMigrations(dsn string, logger *slog.Logger) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_ride_requests.sql"))
	if err != nil {
		return err
	}
	if _, err := db.Exec(string(b)); err != nil {
		return err
	}
	logger.Info("migration applied", "file", "001_create_ride_requests.sql")
	return nil
}
