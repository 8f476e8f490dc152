package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/config"
)

// ErrMalformed marks a message that can never be processed.  Transports
// drop such messages instead of redelivering them.
var ErrMalformed = errors.New("queue: malformed message")

// Publisher sends events to the broker.  The outbox relay is its only
// caller; an error leaves the event in the outbox for the next round.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Handler processes one delivered event.  Returning an error asks the
// transport for a redelivery.
type Handler func(ctx context.Context, evt Event) error

// Subscriber delivers events of one type to a handler until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, eventType string, h Handler) error
	Close() error
}

// NewPublisher returns the publisher selected by cfg.Bus.
func NewPublisher(cfg config.BrokerConfig, log *zap.Logger) (Publisher, error) {
	switch cfg.Bus {
	case config.BusRabbitMQ:
		return NewRabbitPublisher(cfg.RabbitURL, log), nil
	case config.BusKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, log), nil
	}
	return nil, fmt.Errorf("queue: unknown event bus %q", cfg.Bus)
}

// NewSubscriber returns the subscriber selected by cfg.Bus.
func NewSubscriber(cfg config.BrokerConfig, log *zap.Logger) (Subscriber, error) {
	switch cfg.Bus {
	case config.BusRabbitMQ:
		return NewRabbitSubscriber(cfg.RabbitURL, log), nil
	case config.BusKafka:
		return NewKafkaSubscriber(cfg.KafkaBrokers, cfg.KafkaGroupID, log), nil
	}
	return nil, fmt.Errorf("queue: unknown event bus %q", cfg.Bus)
}

// decode parses a raw message body into an event of the expected type.
func decode(body []byte, want string) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if evt.ID == "" {
		return Event{}, fmt.Errorf("%w: missing event id", ErrMalformed)
	}
	if want != "" && evt.Type != want {
		return Event{}, fmt.Errorf("%w: got %s on %s", ErrMalformed, evt.Type, want)
	}
	return evt, nil
}
