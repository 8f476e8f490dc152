// Package worker runs the booking engine's background processes: the
// outbox relay, the side-effect consumers and the expiry sweeper.
package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/queue"
)

// Dedupe remembers processed event ids in Redis so a redelivered event
// is handled once per consumer.  The domain stores stay idempotent on
// their own; the marker only saves the repeated work.
type Dedupe struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

// NewDedupe returns a Dedupe keeping markers for ttl.  A nil client
// disables deduplication.
func NewDedupe(rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *Dedupe {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dedupe{rdb: rdb, ttl: ttl, prefix: "evt", log: log}
}

func (d *Dedupe) key(consumer, eventID string) string {
	return d.prefix + ":" + consumer + ":" + eventID
}

// Once wraps h so that it runs at most once per event id for consumer.
// The marker is dropped again when h fails so the redelivery is
// processed.  When Redis is unavailable h runs anyway.
func (d *Dedupe) Once(consumer string, h queue.Handler) queue.Handler {
	if d == nil || d.rdb == nil {
		return h
	}
	return func(ctx context.Context, evt queue.Event) error {
		key := d.key(consumer, evt.ID)
		fresh, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
		if err != nil {
			d.log.Warn("dedupe marker unavailable", zap.String("consumer", consumer), zap.String("event_id", evt.ID), zap.Error(err))
			return h(ctx, evt)
		}
		if !fresh {
			d.log.Debug("duplicate event skipped", zap.String("consumer", consumer), zap.String("event_id", evt.ID))
			return nil
		}
		if err := h(ctx, evt); err != nil {
			if delErr := d.rdb.Del(ctx, key).Err(); delErr != nil {
				d.log.Warn("dedupe marker not cleared", zap.String("key", key), zap.Error(delErr))
			}
			return err
		}
		return nil
	}
}
