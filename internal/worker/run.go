package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/queue"
)

// Dispatch fans one subscription per event type out to the consumers of
// that type.  Every consumer runs even when an earlier one fails; the
// joined error triggers redelivery and the dedupe markers keep the
// consumers that already succeeded from running twice.
func Dispatch(consumers []Consumer, d *Dedupe, log *zap.Logger) map[string]queue.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	byType := map[string][]Consumer{}
	for _, c := range consumers {
		c.Handle = d.Once(c.Name, c.Handle)
		byType[c.EventType] = append(byType[c.EventType], c)
	}
	out := make(map[string]queue.Handler, len(byType))
	for t, cs := range byType {
		out[t] = func(ctx context.Context, evt queue.Event) error {
			var errs []error
			for _, c := range cs {
				if err := c.Handle(ctx, evt); err != nil {
					log.Warn("consumer failed",
						zap.String("consumer", c.Name),
						zap.String("event_id", evt.ID),
						zap.Uint64("booking_id", evt.BookingID),
						zap.Error(err))
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		}
	}
	return out
}

// Subscribe runs one subscription per event type in handlers and blocks
// until all of them return.
func Subscribe(ctx context.Context, sub queue.Subscriber, handlers map[string]queue.Handler, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for t, h := range handlers {
		wg.Add(1)
		go func(t string, h queue.Handler) {
			defer wg.Done()
			log.Info("consuming", zap.String("event_type", t))
			if err := sub.Subscribe(ctx, t, h); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("subscription ended", zap.String("event_type", t), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(t, h)
	}
	wg.Wait()
	return errors.Join(errs...)
}
