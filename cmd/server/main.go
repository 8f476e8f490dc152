// Command server runs the booking HTTP API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/handler"
	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/pricing"
	"github.com/iliyamo/cinema-booking/internal/router"
	"github.com/iliyamo/cinema-booking/internal/service"
	"github.com/iliyamo/cinema-booking/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrations.Apply(ctx, db); err != nil {
		return err
	}

	// Redis is optional for the API: without it bookings are neither rate
	// limited nor cached.
	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, rate limiting and seat map cache disabled",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	engine, err := newPricingEngine(cfg.Pricing)
	if err != nil {
		return err
	}

	d := service.MySQLDeps(db)
	d.Pricer = engine
	d.Clock = clock.NewSystem()
	d.Logger = log
	d.PaymentGrace = cfg.Booking.PaymentGrace
	bookings, err := service.NewBookingService(d)
	if err != nil {
		return err
	}

	deps := router.Deps{
		JWTSecret: cfg.JWTSecret,
		Logger:    log,
		Health:    handler.Health(healthChecks(db, rdb)...),
	}
	var cache *middleware.SeatMapCache
	if rdb != nil {
		cache = middleware.NewSeatMapCache(cfg.Cache, rdb, log)
		deps.SeatMapCache = cache
		deps.RateLimit = middleware.NewTokenBucket(cfg.RateLimit, rdb, log)
		deps.Bookings = handler.NewBookingHandler(bookings, cache)
	} else {
		deps.Bookings = handler.NewBookingHandler(bookings, nil)
	}
	e := router.New(deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newPricingEngine(cfg config.PricingConfig) (*pricing.Engine, error) {
	table, err := pricing.LoadFile(cfg.File)
	if err != nil {
		return nil, err
	}
	return pricing.NewEngine(table, cfg.Location())
}

func healthChecks(db *sql.DB, rdb *redis.Client) []handler.HealthCheck {
	checks := []handler.HealthCheck{{Name: "mysql", Required: true, Check: db.PingContext}}
	if rdb != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return checks
}
