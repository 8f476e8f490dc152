// Command worker relays outbox events to the broker, applies the side
// effects of booking transitions and optionally sweeps expired bookings.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/clock"
	"github.com/iliyamo/cinema-booking/internal/config"
	"github.com/iliyamo/cinema-booking/internal/database"
	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/notify"
	"github.com/iliyamo/cinema-booking/internal/pricing"
	"github.com/iliyamo/cinema-booking/internal/queue"
	"github.com/iliyamo/cinema-booking/internal/repository"
	"github.com/iliyamo/cinema-booking/internal/service"
	"github.com/iliyamo/cinema-booking/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("worker")

	if err := run(cfg, log); err != nil {
		log.Fatal("worker stopped", zap.Error(err))
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

	// Without Redis events are not deduplicated; the handlers are
	// idempotent on their own keys, so redeliveries only cost extra work.
	var (
		dedupe *worker.Dedupe
		cache  *middleware.SeatMapCache
	)
	if rdb, err := config.NewRedisClient(ctx, cfg.Redis); err != nil {
		log.Warn("redis unavailable, event dedupe and cache invalidation disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		dedupe = worker.NewDedupe(rdb, cfg.Booking.DedupeTTL, log)
		cache = middleware.NewSeatMapCache(cfg.Cache, rdb, log)
	}

	pub, err := queue.NewPublisher(cfg.Broker, log)
	if err != nil {
		return err
	}
	defer pub.Close()
	sub, err := queue.NewSubscriber(cfg.Broker, log)
	if err != nil {
		return err
	}
	defer sub.Close()

	table, err := pricing.LoadFile(cfg.Pricing.File)
	if err != nil {
		return err
	}
	engine, err := pricing.NewEngine(table, cfg.Pricing.Location())
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

	handlers := &worker.Handlers{
		Loyalty:    repository.NewLoyaltyRepo(db),
		Promotions: repository.NewPromotionRepo(db),
		Payments:   repository.NewPaymentRepo(db),
		History:    repository.NewHistoryRepo(db),
		Notifier:   notify.NewFileNotifier(cfg.Booking.NotifyFile),
		Log:        log,
	}
	if cache != nil {
		handlers.Cache = cache
	}

	relay := &worker.Relay{
		Outbox:    repository.NewOutboxRepo(db),
		Publisher: pub,
		Interval:  cfg.Booking.OutboxPollInterval,
		BatchSize: cfg.Booking.OutboxBatchSize,
		Log:       log,
	}
	sweeper := &worker.Sweeper{
		Expirer:   bookings,
		Interval:  cfg.Booking.ExpirySweepInterval,
		BatchSize: cfg.Booking.OutboxBatchSize,
		Log:       log,
	}

	log.Info("worker started",
		zap.String("bus", cfg.Broker.Bus),
		zap.Duration("sweep_interval", cfg.Booking.ExpirySweepInterval))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("component failed", zap.String("component", name), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				stop()
			}
		}()
	}
	start("relay", relay.Run)
	start("sweeper", sweeper.Run)
	start("consumers", func(ctx context.Context) error {
		return worker.Subscribe(ctx, sub, worker.Dispatch(handlers.Consumers(), dedupe, log), log)
	})
	wg.Wait()
	log.Info("worker stopped")
	return errors.Join(errs...)
}
