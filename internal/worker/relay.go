package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/queue"
)

// OutboxSource hands unpublished outbox events to publish.
type OutboxSource interface {
	RelayBatch(ctx context.Context, limit int, publish func(context.Context, queue.Event) error) (int, error)
}

// Relay moves committed outbox events to the broker.
type Relay struct {
	Outbox    OutboxSource
	Publisher queue.Publisher
	Interval  time.Duration
	BatchSize int
	Log       *zap.Logger
}

// Run polls the outbox until ctx is cancelled.  A full batch is followed
// immediately by another round.
func (r *Relay) Run(ctx context.Context) error {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	batch := max(r.BatchSize, 1)

	log.Info("outbox relay started", zap.Duration("interval", interval), zap.Int("batch", batch))
	for {
		n, err := r.Outbox.RelayBatch(ctx, batch, r.Publisher.Publish)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("outbox relay round failed", zap.Error(err))
		case n > 0:
			log.Debug("outbox events published", zap.Int("count", n))
		}
		if n >= batch && err == nil {
			continue
		}
		if !sleep(ctx, interval) {
			log.Info("outbox relay stopped")
			return ctx.Err()
		}
	}
}

// Sweeper periodically cancels PENDING bookings past their deadline.
type Sweeper struct {
	Expirer   Expirer
	Interval  time.Duration
	BatchSize int
	Log       *zap.Logger
}

// Expirer is the booking engine operation the sweeper drives.
type Expirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// Run sweeps every Interval until ctx is cancelled.  A zero interval
// disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	if s.Interval <= 0 {
		log.Info("expiry sweeper disabled")
		return nil
	}
	batch := max(s.BatchSize, 1)
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			n, err := s.Expirer.ExpireOverdue(ctx, batch)
			if err != nil && ctx.Err() == nil {
				log.Warn("expiry sweep failed", zap.Error(err))
			}
			if n > 0 {
				log.Info("expired pending bookings", zap.Int("count", n))
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
